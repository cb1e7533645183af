package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Sternrassler/release-radar/pkg/radar"
	"github.com/fatih/color"
)

// printSummary writes the run summary to w, one line plus one line per failed fetch.
func printSummary(w io.Writer, res radar.Result, useColor bool) {
	label := func(attrs ...color.Attribute) func(format string, a ...any) string {
		c := color.New(attrs...)
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.Sprintf
	}
	ok := label(color.FgGreen, color.Bold)
	warn := label(color.FgYellow, color.Bold)
	faint := label(color.Faint)

	status := ok("OK")
	if res.Partial() {
		status = warn("PARTIAL")
	}

	parts := []string{
		fmt.Sprintf("%d entries", len(res.Report.Entries)),
		fmt.Sprintf("%d creators", len(res.Creators)),
		fmt.Sprintf("%d excluded", len(res.Report.Excluded)),
		fmt.Sprintf("%d duplicates", res.Report.Duplicates),
		fmt.Sprintf("%d failed fetches", res.Summary.FailedCount()),
	}
	fmt.Fprintf(w, "%s %s %s\n", status, strings.Join(parts, ", "),
		faint("(since %s, %s)", res.Report.Cutoff.Format("2006-01-02"), res.Duration.Round(time.Millisecond)))

	for _, f := range res.Summary.Failed {
		fmt.Fprintf(w, "  %s %v\n", warn("!"), f)
	}
	for _, ex := range res.Report.Excluded {
		fmt.Fprintf(w, "  %s %s (%s): %v\n", faint("-"), ex.Release.Title, ex.Release.ReleaseDate, ex.Err)
	}
}
