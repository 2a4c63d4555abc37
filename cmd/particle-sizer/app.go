package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/particle.sizing/internal/calibration"
	"github.com/banshee-data/particle.sizing/internal/config"
	"github.com/banshee-data/particle.sizing/internal/db"
	"github.com/banshee-data/particle.sizing/internal/dualwave"
	"github.com/banshee-data/particle.sizing/internal/fcs"
	"github.com/banshee-data/particle.sizing/internal/fsutil"
	"github.com/banshee-data/particle.sizing/internal/inverse"
	"github.com/banshee-data/particle.sizing/internal/mie"
	"github.com/banshee-data/particle.sizing/internal/sizing"
	"github.com/banshee-data/particle.sizing/internal/timeutil"
	"github.com/banshee-data/particle.sizing/internal/version"
)

// app carries what every subcommand needs.
type app struct {
	stdout io.Writer
	stderr io.Writer
	fsys   fsutil.FileSystem
	clock  timeutil.Clock
	tables *mie.TableCache
	cfg    *config.SizingConfig
	dbPath string
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		fsys:   fsutil.OSFileSystem{},
		clock:  timeutil.RealClock{},
		tables: &mie.TableCache{},
	}
}

// commonFlags registers --config and --db on fs. The returned function
// loads the configuration once fs has been parsed.
func (a *app) commonFlags(fs *flag.FlagSet) func() error {
	cfgPath := fs.String("config", "", "Sizing configuration JSON (default: built-in defaults)")
	dbPath := fs.String("db", "", "SQLite database path (overrides database_path)")
	return func() error {
		if *cfgPath == "" {
			a.cfg = config.DefaultSizingConfig()
		} else {
			cfg, err := config.LoadSizingConfig(*cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
		}
		a.dbPath = *dbPath
		if a.dbPath == "" {
			a.dbPath = a.cfg.GetDatabasePath()
		}
		return nil
	}
}

// parse parses args with fs, printing flag errors to stderr.
func (a *app) parse(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(a.stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

func (a *app) openDB() (*db.DB, error) {
	if a.dbPath == "" {
		return nil, fmt.Errorf("no database configured: pass --db or set database_path")
	}
	return db.Open(a.dbPath)
}

func (a *app) writeJSON(v interface{}) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadCurve resolves a --calibration argument: a path to a curve JSON file,
// "latest", or a stored curve ID.
func (a *app) loadCurve(ref string) (*calibration.Curve, error) {
	if strings.HasSuffix(strings.ToLower(ref), ".json") {
		data, err := fsutil.ReadBounded(a.fsys, ref, 1<<20)
		if err != nil {
			return nil, err
		}
		return calibration.UnmarshalCurve(data)
	}
	store, err := a.openDB()
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if ref == "latest" {
		return store.Calibrations().Latest()
	}
	return store.Calibrations().Get(ref)
}

// beadInput is one entry of a beads JSON file. Scatter is either given
// directly or measured as the median forward scatter of File.
type beadInput struct {
	DiameterNM float64 `json:"diameter_nm"`
	Scatter    float64 `json:"scatter,omitempty"`
	File       string  `json:"file,omitempty"`
	Label      string  `json:"label,omitempty"`
}

// loadBeads reads a beads JSON file. Relative bead file paths resolve
// against the directory of the beads file.
func (a *app) loadBeads(path string) ([]calibration.Bead, error) {
	data, err := fsutil.ReadBounded(a.fsys, path, 1<<20)
	if err != nil {
		return nil, err
	}
	var inputs []beadInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	beads := make([]calibration.Bead, 0, len(inputs))
	for i, in := range inputs {
		b := calibration.Bead{DiameterNM: in.DiameterNM, Scatter: in.Scatter, Label: in.Label}
		if in.File != "" {
			file := in.File
			if !filepath.IsAbs(file) {
				file = filepath.Join(filepath.Dir(path), file)
			}
			if b.Scatter, err = a.beadScatter(file); err != nil {
				return nil, fmt.Errorf("bead %d: %w", i, err)
			}
			if b.Label == "" {
				b.Label = filepath.Base(in.File)
			}
		}
		beads = append(beads, b)
	}
	return beads, nil
}

func (a *app) beadScatter(path string) (float64, error) {
	data, err := fsutil.ReadBounded(a.fsys, path, fcs.MaxFileSize)
	if err != nil {
		return 0, err
	}
	doc, err := fcs.Parse(data)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	values, err := doc.Column(a.cfg.GetForwardChannel())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	median, n, err := calibration.BeadStatistic(values)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintf(a.stderr, "%s: median forward scatter %.6g over %d events\n", path, median, n)
	return median, nil
}

// strategyOptions selects how events are sized.
type strategyOptions struct {
	calibration string
	gain        float64
	gainBeads   string
}

func (a *app) strategyFlags(fs *flag.FlagSet) *strategyOptions {
	o := &strategyOptions{}
	fs.StringVar(&o.calibration, "calibration", "", "Calibration curve: JSON file, stored ID or \"latest\" (default: model inversion)")
	fs.Float64Var(&o.gain, "gain", 0, "Instrument gain for model inversion (measured / modelled scatter)")
	fs.StringVar(&o.gainBeads, "gain-beads", "", "Beads JSON to fit the inversion gain from")
	return o
}

// buildStrategy returns the sizing strategy and, for calibration strategies,
// the curve ID.
func (a *app) buildStrategy(ctx context.Context, o *strategyOptions) (sizing.Strategy, string, error) {
	if o.calibration != "" {
		curve, err := a.loadCurve(o.calibration)
		if err != nil {
			return nil, "", err
		}
		if curve.Channel != "" && curve.Channel != a.cfg.GetForwardChannel() {
			fmt.Fprintf(a.stderr, "warning: calibration %s was fitted on %s, sizing %s\n", curve.ID, curve.Channel, a.cfg.GetForwardChannel())
		}
		if curve.ProxyModel != version.ProxyModel {
			fmt.Fprintf(a.stderr, "warning: calibration %s uses proxy model %q, engine uses %q\n", curve.ID, curve.ProxyModel, version.ProxyModel)
		}
		return sizing.CalibrationStrategy{Curve: curve, Role: sizing.RoleForward}, curve.ID, nil
	}

	gain := calibration.Gain{Factor: o.gain}
	if o.gainBeads != "" {
		beads, err := a.loadBeads(o.gainBeads)
		if err != nil {
			return nil, "", err
		}
		beadTable, err := a.tables.Get(ctx, a.cfg.BeadOptics(), a.cfg.Grid())
		if err != nil {
			return nil, "", err
		}
		if gain, err = calibration.FitGain(beads, beadTable); err != nil {
			return nil, "", err
		}
		fmt.Fprintf(a.stderr, "gain %.6g from %d beads (log sd %.3f)\n", gain.Factor, gain.N, gain.LogSD)
	}
	if !(gain.Factor > 0) {
		return nil, "", fmt.Errorf("model inversion needs --gain or --gain-beads (or pass --calibration)")
	}

	table, err := a.tables.Get(ctx, a.cfg.Optics(), a.cfg.Grid())
	if err != nil {
		return nil, "", err
	}
	s := sizing.InversionStrategy{
		Solver: inverse.NewSolver(table, a.cfg.SolverSignal(), a.cfg.Refine()),
		Bounds: a.cfg.Bounds(),
		Gain:   gain,
	}
	if a.cfg.HasDisambiguation() {
		correction, err := a.cfg.DetectorCorrection()
		if err != nil {
			return nil, "", err
		}
		d, err := dualwave.New(a.cfg.Optics(), a.cfg.SecondOptics(), correction)
		if err != nil {
			return nil, "", err
		}
		second, err := a.tables.Get(ctx, a.cfg.SecondOptics(), a.cfg.Grid())
		if err != nil {
			return nil, "", err
		}
		if s.Disambiguator, err = d.WithTables(table, second); err != nil {
			return nil, "", err
		}
	}
	return s, "", nil
}

func (a *app) writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := a.fsys.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return a.fsys.WriteFile(path, data, 0o644)
}
