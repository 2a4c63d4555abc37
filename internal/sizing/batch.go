package sizing

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/particle.sizing/internal/fcs"
	"github.com/banshee-data/particle.sizing/internal/fsutil"
	"github.com/banshee-data/particle.sizing/internal/monitoring"
	"github.com/banshee-data/particle.sizing/internal/timeutil"
)

var logf = monitoring.Component("sizing")

// Failure reasons recorded on FileResult.
const (
	ReasonRead     = "read"
	ReasonParse    = "parse"
	ReasonChannels = "channels"
	ReasonAnalyze  = "analyze"
	ReasonSkipped  = "skipped"
	ReasonPanic    = "panic"
)

// FileResult is the outcome for one file of a batch. Exactly one of Analysis
// and Err is set.
type FileResult struct {
	Path     string
	Analysis *Analysis
	Err      error
	Reason   string
	Elapsed  time.Duration
}

// OK reports whether the file was analysed.
func (r FileResult) OK() bool { return r.Err == nil }

// Batch sizes many files with one strategy. All fields are read-only during
// Run; the strategy and any lookup tables it holds are shared by every
// worker.
type Batch struct {
	FS       fsutil.FileSystem // nil means the OS filesystem
	Roles    fcs.ChannelRoles
	Strategy Strategy
	Stats    StatsOptions
	Workers  int            // zero means GOMAXPROCS
	Clock    timeutil.Clock // times each file; nil means the real clock
}

// Run analyses paths on a bounded worker pool and returns one result per
// path, in input order. A failing file is recorded and does not affect its
// siblings. Once ctx is cancelled no further file is started; files already
// running finish, and the rest are marked skipped.
func (b *Batch) Run(ctx context.Context, paths []string) []FileResult {
	results := make([]FileResult, len(paths))

	workers := b.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(workers)

	for i, p := range paths {
		results[i].Path = p
		if ctx.Err() != nil {
			results[i].Err, results[i].Reason = ctx.Err(), ReasonSkipped
			continue
		}
		i := i
		g.Go(func() error {
			// Queued work may have waited for a slot past cancellation.
			if err := ctx.Err(); err != nil {
				results[i].Err, results[i].Reason = err, ReasonSkipped
				return nil
			}
			results[i] = b.runFile(results[i].Path)
			return nil
		})
	}
	// Workers record failures in results and always return nil.
	g.Wait() //nolint:errcheck

	var ok, failed, skipped int
	for _, r := range results {
		switch {
		case r.OK():
			ok++
		case r.Reason == ReasonSkipped:
			skipped++
		default:
			failed++
		}
	}
	logf("batch of %d files: %d analysed, %d failed, %d skipped", len(paths), ok, failed, skipped)
	return results
}

func (b *Batch) runFile(path string) (res FileResult) {
	clock := b.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	start := clock.Now()
	res = FileResult{Path: path}
	fail := func(reason string, err error) FileResult {
		res.Analysis = nil
		res.Err, res.Reason, res.Elapsed = err, reason, clock.Since(start)
		logf("%s: %s failed: %v", path, reason, err)
		return res
	}
	defer func() {
		if r := recover(); r != nil {
			res = fail(ReasonPanic, fmt.Errorf("panic while sizing %s: %v", path, r))
		}
	}()

	fsys := b.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	data, err := fsutil.ReadBounded(fsys, path, fcs.MaxFileSize)
	if err != nil {
		return fail(ReasonRead, err)
	}
	doc, err := fcs.Parse(data)
	if err != nil {
		return fail(ReasonParse, err)
	}
	cols, err := b.Roles.Resolve(doc)
	if err != nil {
		return fail(ReasonChannels, err)
	}
	a, err := Analyze(doc.Events, cols, b.Strategy, b.Stats)
	if err != nil {
		return fail(ReasonAnalyze, err)
	}
	res.Analysis, res.Elapsed = a, clock.Since(start)
	return res
}
