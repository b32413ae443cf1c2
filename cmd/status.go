package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkimlab/jobsubmitter/config"
	"github.com/pkimlab/jobsubmitter/jobs"
	"github.com/pkimlab/jobsubmitter/status"
)

// runStatus classifies every job in the table from the logs in the local
// job directory. Logs from a remote batch come down with
// "jobsubmitter sync --pull" first.
func runStatus(conf config.Config, dir, tablePath string, asJSON, counts bool, w io.Writer) error {
	table, err := jobs.ReadTableFile(tablePath)
	if err != nil {
		return err
	}

	results := status.NewReader(dir, conf.Status).ReadTable(table)

	switch {
	case counts:
		return printCounts(w, results)
	case asJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		return printResults(w, results)
	}
}

// printResults writes one TSV row per job. The data column carries the
// job's parsed stdout fields as JSON when there are any, and the raw
// stdout otherwise.
func printResults(w io.Writer, results []jobs.Result) error {
	tw := csv.NewWriter(w)
	tw.Comma = '\t'
	tw.Write([]string{"index", "status", "data"})
	for _, res := range results {
		data := res.StdoutData
		if res.Fields != nil {
			b, err := json.Marshal(res.Fields)
			if err != nil {
				return err
			}
			data = string(b)
		}
		tw.Write([]string{res.Index, string(res.Status), data})
	}
	tw.Flush()
	return tw.Error()
}

func printCounts(w io.Writer, results []jobs.Result) error {
	totals := status.Counts(results)
	for _, st := range []jobs.Status{jobs.Done, jobs.Error, jobs.Frozen, jobs.Missing} {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", st, totals[st]); err != nil {
			return err
		}
	}
	return nil
}
