package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/banshee-data/particle.sizing/internal/calibration"
	"github.com/banshee-data/particle.sizing/internal/diagplot"
)

func cmdCalibrate(a *app, args []string) error {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	load := a.commonFlags(fs)
	beadsPath := fs.String("beads", "", "Beads JSON: [{\"diameter_nm\":..., \"scatter\":...|\"file\":...}] (required)")
	label := fs.String("label", "", "Label recorded on the curve")
	out := fs.String("out", "", "Write the curve JSON to this file")
	store := fs.Bool("store", false, "Store the curve in the database")
	plotPath := fs.String("plot", "", "Write a calibration plot (png, svg or pdf)")
	withGain := fs.Bool("gain", false, "Also fit the model inversion gain from the same beads")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	if err := load(); err != nil {
		return err
	}
	if *beadsPath == "" {
		fmt.Fprintln(a.stderr, "Error: --beads is required")
		fs.Usage()
		return errUsage
	}

	beads, err := a.loadBeads(*beadsPath)
	if err != nil {
		return err
	}

	opts := a.cfg.FitOptions()
	opts.Label = *label
	opts.Clock = a.clock
	session := calibration.NewSession()
	if _, err := session.Refit(beads, opts); err != nil {
		return err
	}
	curve, _ := session.Active()

	raw, err := curve.Marshal()
	if err != nil {
		return err
	}
	if *out != "" {
		if err := a.writeFile(*out, raw); err != nil {
			return err
		}
	}
	if *store {
		database, err := a.openDB()
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.Calibrations().Insert(curve); err != nil {
			return err
		}
		fmt.Fprintf(a.stderr, "stored calibration %s\n", curve.ID)
	}
	if *plotPath != "" {
		if err := diagplot.CalibrationFit(curve, *plotPath); err != nil {
			return err
		}
	}

	result := struct {
		Curve *calibration.Curve `json:"curve"`
		Gain  *calibration.Gain  `json:"gain,omitempty"`
	}{Curve: curve}
	if *withGain {
		table, err := a.tables.Get(context.Background(), a.cfg.BeadOptics(), a.cfg.Grid())
		if err != nil {
			return err
		}
		g, err := calibration.FitGain(beads, table)
		if err != nil {
			return err
		}
		result.Gain = &g
	}
	return a.writeJSON(result)
}
