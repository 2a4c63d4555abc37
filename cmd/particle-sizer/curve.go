package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"strconv"

	"github.com/banshee-data/particle.sizing/internal/diagplot"
	"github.com/banshee-data/particle.sizing/internal/dualwave"
	"github.com/banshee-data/particle.sizing/internal/mie"
)

func cmdCurve(a *app, args []string) error {
	fs := flag.NewFlagSet("curve", flag.ContinueOnError)
	load := a.commonFlags(fs)
	minNM := fs.Float64("min", 0, "Smallest diameter in nm (default: grid_min_nm)")
	maxNM := fs.Float64("max", 0, "Largest diameter in nm (default: grid_max_nm)")
	stepNM := fs.Float64("step", 0, "Grid step in nm (default: grid_step_nm)")
	beads := fs.Bool("beads", false, "Use the bead refractive index instead of the particle index")
	plotPath := fs.String("plot", "", "Also plot the curves (png, svg or pdf)")
	signal := fs.String("signal", "", "Signal to plot: forward or side (default: configured signal)")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	if err := load(); err != nil {
		return err
	}

	grid := a.cfg.Grid()
	if *minNM > 0 {
		grid.MinNM = *minNM
	}
	if *maxNM > 0 {
		grid.MaxNM = *maxNM
	}
	if *stepNM > 0 {
		grid.StepNM = *stepNM
	}
	optics, second := a.cfg.Optics(), a.cfg.SecondOptics()
	if *beads {
		optics = a.cfg.BeadOptics()
		second.ParticleIndex = optics.ParticleIndex
	}

	ctx := context.Background()
	table, err := a.tables.Get(ctx, optics, grid)
	if err != nil {
		return err
	}
	tables := []*mie.Table{table}

	var ratios []float64
	if a.cfg.HasDisambiguation() {
		other, err := a.tables.Get(ctx, second, grid)
		if err != nil {
			return err
		}
		tables = append(tables, other)
		d, err := dualwave.New(optics, second, dualwave.DetectorCorrection{Factor: 1, Source: "theory"})
		if err != nil {
			return err
		}
		if d, err = d.WithTables(table, other); err != nil {
			return err
		}
		if ratios, err = d.RatioCurve(table.Diameters()); err != nil {
			return err
		}
	}

	w := csv.NewWriter(a.stdout)
	header := []string{"diameter_nm", "x", "qext", "qsca", "qback", "g", "forward", "side"}
	if ratios != nil {
		header = append(header, "ratio")
	}
	if err := w.Write(header); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', 8, 64) }
	for i := 0; i < table.Len(); i++ {
		r := table.Result(i)
		row := []string{f(r.DiameterNM), f(r.X), f(r.Qext), f(r.Qsca), f(r.Qback), f(r.G), f(r.Forward), f(r.Side)}
		if ratios != nil {
			row = append(row, f(ratios[i]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if *plotPath != "" {
		s := a.cfg.SolverSignal()
		switch *signal {
		case "":
		case "forward":
			s = mie.SignalForward
		case "side":
			s = mie.SignalSide
		default:
			return fmt.Errorf("--signal %q must be forward or side", *signal)
		}
		if err := diagplot.ResponseCurves(tables, s, *plotPath); err != nil {
			return err
		}
	}
	return nil
}
