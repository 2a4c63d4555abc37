package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/particle.sizing/internal/fcs"
	"github.com/banshee-data/particle.sizing/internal/fsutil"
	"github.com/banshee-data/particle.sizing/internal/nta"
	"github.com/banshee-data/particle.sizing/internal/sizing"
)

type sampleReport struct {
	Path   string             `json:"path"`
	Source string             `json:"source"` // "scatter" or "nta"
	Counts *sizing.Counts     `json:"counts,omitempty"`
	Stats  *sizing.Statistics `json:"stats"`
}

type compareReport struct {
	A           sampleReport      `json:"a"`
	B           sampleReport      `json:"b"`
	Comparison  sizing.Comparison `json:"comparison"`
	Alpha       float64           `json:"alpha"`
	Significant bool              `json:"significant"`
}

func cmdCompare(a *app, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	load := a.commonFlags(fs)
	strategy := a.strategyFlags(fs)
	alpha := fs.Float64("alpha", 0.05, "Significance level")
	column := fs.String("nta-column", "", "Size column for CSV inputs (default: auto-detect)")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	if err := load(); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(a.stderr, "Error: compare takes exactly two inputs: <a> <b>")
		fs.Usage()
		return errUsage
	}
	if !(*alpha > 0 && *alpha < 1) {
		return fmt.Errorf("--alpha %g must be in (0, 1)", *alpha)
	}

	l := &sampleLoader{app: a, opts: strategy, ntaColumn: *column}
	sa, da, err := l.load(fs.Arg(0))
	if err != nil {
		return err
	}
	sb, db, err := l.load(fs.Arg(1))
	if err != nil {
		return err
	}

	cmp, err := sizing.Compare(da, db)
	if err != nil {
		return err
	}
	return a.writeJSON(compareReport{
		A:           sa,
		B:           sb,
		Comparison:  cmp,
		Alpha:       *alpha,
		Significant: cmp.Significant(*alpha),
	})
}

// sampleLoader turns an input path into a diameter sample. The sizing
// strategy is only built when a scatter file is seen.
type sampleLoader struct {
	app       *app
	opts      *strategyOptions
	ntaColumn string
	strategy  sizing.Strategy
}

func (l *sampleLoader) load(path string) (sampleReport, []float64, error) {
	a := l.app
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		data, err := fsutil.ReadBounded(a.fsys, path, fcs.MaxFileSize)
		if err != nil {
			return sampleReport{}, nil, err
		}
		sizes, err := nta.ReadSizes(bytes.NewReader(data), nta.Options{Column: l.ntaColumn})
		if err != nil {
			return sampleReport{}, nil, fmt.Errorf("%s: %w", path, err)
		}
		if sizes.Skipped > 0 {
			fmt.Fprintf(a.stderr, "%s: skipped %d unusable rows in %q\n", path, sizes.Skipped, sizes.Column)
		}
		stats, err := sizing.ComputeStatistics(sizes.Values, a.cfg.StatsOptions())
		if err != nil {
			return sampleReport{}, nil, fmt.Errorf("%s: %w", path, err)
		}
		return sampleReport{Path: path, Source: "nta", Stats: stats}, sizes.Values, nil
	}

	if l.strategy == nil {
		s, _, err := a.buildStrategy(context.Background(), l.opts)
		if err != nil {
			return sampleReport{}, nil, err
		}
		l.strategy = s
	}
	data, err := fsutil.ReadBounded(a.fsys, path, fcs.MaxFileSize)
	if err != nil {
		return sampleReport{}, nil, err
	}
	doc, err := fcs.Parse(data)
	if err != nil {
		return sampleReport{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	cols, err := a.cfg.ChannelRoles().Resolve(doc)
	if err != nil {
		return sampleReport{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	an, err := sizing.Analyze(doc.Events, cols, l.strategy, a.cfg.StatsOptions())
	if err != nil {
		return sampleReport{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	if an.Stats == nil {
		return sampleReport{}, nil, fmt.Errorf("%s: no validly sized events out of %d", path, an.Counts.Total)
	}
	return sampleReport{Path: path, Source: "scatter", Counts: &an.Counts, Stats: an.Stats}, an.Diameters, nil
}
