package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/banshee-data/particle.sizing/internal/db"
	"github.com/banshee-data/particle.sizing/internal/diagplot"
	"github.com/banshee-data/particle.sizing/internal/fsutil"
	"github.com/banshee-data/particle.sizing/internal/sizing"
)

type fileReport struct {
	Path      string             `json:"path"`
	OK        bool               `json:"ok"`
	Reason    string             `json:"reason,omitempty"`
	Error     string             `json:"error,omitempty"`
	ElapsedMS int64              `json:"elapsed_ms"`
	Counts    *sizing.Counts     `json:"counts,omitempty"`
	Stats     *sizing.Statistics `json:"stats,omitempty"`
	Events    []sizing.Estimate  `json:"events,omitempty"`
}

type analyzeReport struct {
	RunID    string       `json:"run_id"`
	Strategy string       `json:"strategy"`
	Files    []fileReport `json:"files"`
}

func cmdAnalyze(a *app, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	load := a.commonFlags(fs)
	strategy := a.strategyFlags(fs)
	store := fs.Bool("store", false, "Store the run summary in the database")
	plotDir := fs.String("plot-dir", "", "Write a size distribution plot per file into this directory")
	events := fs.Bool("events", false, "Include per-event estimates in the output")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	if err := load(); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(a.stderr, "Error: no input files")
		fs.Usage()
		return errUsage
	}
	paths, err := fsutil.ExpandPaths(a.fsys, fs.Args())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, calibrationID, err := a.buildStrategy(ctx, strategy)
	if err != nil {
		return err
	}

	batch := &sizing.Batch{
		FS:       a.fsys,
		Roles:    a.cfg.ChannelRoles(),
		Strategy: s,
		Stats:    a.cfg.StatsOptions(),
		Workers:  a.cfg.GetWorkers(),
		Clock:    a.clock,
	}
	started := a.clock.Now().UTC()
	results := batch.Run(ctx, paths)
	finished := a.clock.Now().UTC()

	report := analyzeReport{RunID: uuid.New().String(), Strategy: s.Name()}
	failed := 0
	for _, r := range results {
		fr := fileReport{Path: r.Path, OK: r.OK(), Reason: r.Reason, ElapsedMS: r.Elapsed.Milliseconds()}
		if r.Err != nil {
			fr.Error = r.Err.Error()
			failed++
		}
		if r.Analysis != nil {
			fr.Counts = &r.Analysis.Counts
			fr.Stats = r.Analysis.Stats
			if *events {
				fr.Events = r.Analysis.Estimates
			}
		}
		report.Files = append(report.Files, fr)

		if *plotDir != "" && r.Analysis != nil && len(r.Analysis.Diameters) > 0 {
			out := filepath.Join(*plotDir, fsutil.OutputName(r.Path, ".png"))
			if err := a.fsys.MkdirAll(*plotDir, 0o755); err != nil {
				return err
			}
			if err := diagplot.Distribution(r.Analysis.Diameters, a.cfg.StatsOptions(), filepath.Base(r.Path), out); err != nil {
				return fmt.Errorf("plot %s: %w", r.Path, err)
			}
		}
	}

	if *store {
		database, err := a.openDB()
		if err != nil {
			return err
		}
		defer database.Close()
		cfgJSON, err := json.Marshal(a.cfg)
		if err != nil {
			return err
		}
		run := &db.RunSummary{
			RunID:         report.RunID,
			Strategy:      report.Strategy,
			CalibrationID: calibrationID,
			StartedAt:     started,
			FinishedAt:    finished,
			Config:        cfgJSON,
			Files:         db.SummarizeFiles(results),
		}
		if err := database.Runs().InsertRun(run); err != nil {
			return err
		}
	}

	if err := a.writeJSON(report); err != nil {
		return err
	}
	if failed == len(results) {
		return fmt.Errorf("all %d files failed", failed)
	}
	return nil
}
