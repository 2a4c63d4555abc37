package main

import (
	"flag"
	"fmt"
	"text/tabwriter"
	"time"
)

func cmdCalibrations(a *app, args []string) error {
	fs := flag.NewFlagSet("calibrations", flag.ContinueOnError)
	load := a.commonFlags(fs)
	show := fs.String("show", "", "Print the stored curve with this ID (or \"latest\")")
	del := fs.String("delete", "", "Delete the stored curve with this ID")
	runs := fs.Int("runs", 0, "List the N most recent sizing runs instead of curves")
	asJSON := fs.Bool("json", false, "Print listings as JSON")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	if err := load(); err != nil {
		return err
	}

	database, err := a.openDB()
	if err != nil {
		return err
	}
	defer database.Close()
	store := database.Calibrations()

	switch {
	case *del != "":
		if err := store.Delete(*del); err != nil {
			return err
		}
		fmt.Fprintf(a.stderr, "deleted calibration %s\n", *del)
		return nil

	case *show != "":
		if *show == "latest" {
			c, err := store.Latest()
			if err != nil {
				return err
			}
			return a.writeJSON(c)
		}
		c, err := store.Get(*show)
		if err != nil {
			return err
		}
		return a.writeJSON(c)

	case *runs > 0:
		list, err := database.Runs().ListRuns(*runs)
		if err != nil {
			return err
		}
		if *asJSON {
			return a.writeJSON(list)
		}
		tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTARTED\tSTRATEGY\tFILES\tFAILED\tEVENTS\tVALID")
		for _, r := range list {
			failed, counts := r.Totals()
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
				r.RunID, r.StartedAt.Local().Format(time.DateTime), r.Strategy,
				len(r.Files), failed, counts.Total, counts.Valid)
		}
		return tw.Flush()
	}

	list, err := store.List()
	if err != nil {
		return err
	}
	if *asJSON {
		return a.writeJSON(list)
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tLABEL\tCHANNEL\tFIT\tR²\tRANGE (nm)")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.4f\t%g–%g\n",
			c.ID, time.Unix(0, c.CreatedAt).Local().Format(time.DateTime), c.Label,
			c.Channel, c.FitType, c.RSquared, c.DMinNM, c.DMaxNM)
	}
	return tw.Flush()
}
