// Package report renders a fetch report for people and for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/randalmurphal/artifetch/fetch"
)

// WriteTable prints one summary row per target, then one detail row for
// every outcome that was not downloaded, then the run totals.
func WriteTable(w io.Writer, r *fetch.Report) error {
	summary := tablewriter.NewWriter(w)
	summary.SetBorder(false)
	summary.SetHeader([]string{
		"Target",
		"Project",
		"Pipeline",
		"Requested",
		"Resolved",
		"Downloaded",
		"Unavailable",
		"Failed",
		"Size",
	})

	for _, t := range r.Targets {
		c := t.Counts()
		row := []string{
			strconv.Itoa(t.Target.Index),
			t.Target.ProjectID.String(),
			t.Target.PipelineID.String(),
			strconv.Itoa(c.Requested),
			strconv.Itoa(c.Resolved),
			strconv.Itoa(c.Downloaded),
			strconv.Itoa(c.Unavailable),
			strconv.Itoa(c.Failed),
			humanize.Bytes(uint64(downloadedBytes(t))),
		}
		switch {
		case t.Err != nil:
			row[3] = "invalid"
		case t.Skipped:
			row[3] = "skipped"
		}
		summary.Append(row)
	}
	summary.Render()

	details := detailRows(r)
	if len(details) > 0 {
		fmt.Fprintln(w)
		table := tablewriter.NewWriter(w)
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		table.SetHeader([]string{"Target", "Job", "Job ID", "Status", "Reason"})
		table.AppendBulk(details)
		table.Render()
	}

	for _, t := range r.Targets {
		if t.Bundle != nil {
			fmt.Fprintf(w, "\nbundled target %d reports into %s (%s)\n",
				t.Target.Index, t.Bundle.Path, humanize.Bytes(uint64(t.Bundle.Size)))
		}
		if t.BundleError != "" {
			fmt.Fprintf(w, "\ntarget %d bundle failed: %s\n", t.Target.Index, t.BundleError)
		}
	}

	totals := r.Totals()
	fmt.Fprintf(w, "\nrun %s: %d downloaded, %d unavailable, %d failed\n",
		r.RunID, totals.Downloaded, totals.Unavailable, totals.Failed)
	if r.Aborted {
		_, err := fmt.Fprintf(w, "run aborted: %s\n", r.AbortReason)
		return err
	}
	return nil
}

func downloadedBytes(t *fetch.TargetReport) int64 {
	var n int64
	for _, o := range t.Outcomes {
		if o.Status == fetch.StatusDownloaded {
			n += o.Size
		}
	}
	return n
}

func detailRows(r *fetch.Report) [][]string {
	var rows [][]string
	for _, t := range r.Targets {
		index := strconv.Itoa(t.Target.Index)
		if t.Err != nil {
			rows = append(rows, []string{index, "", "", "invalid", t.Error})
			continue
		}
		for _, o := range t.Outcomes {
			if o.Status == fetch.StatusDownloaded {
				if o.ExtractError != "" {
					rows = append(rows, []string{index, o.JobName, strconv.Itoa(o.JobID), "extract failed", o.ExtractError})
				}
				if o.ConvertError != "" {
					rows = append(rows, []string{index, o.JobName, strconv.Itoa(o.JobID), "convert failed", o.ConvertError})
				}
				continue
			}
			id := ""
			if o.JobID != 0 {
				id = strconv.Itoa(o.JobID)
			}
			rows = append(rows, []string{index, o.JobName, id, string(o.Status), o.Reason})
		}
	}
	return rows
}

type jsonReport struct {
	*fetch.Report
	Totals fetch.Counts `json:"totals"`
}

// WriteJSON prints the report, with run totals, as indented JSON.
func WriteJSON(w io.Writer, r *fetch.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonReport{Report: r, Totals: r.Totals()}); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
