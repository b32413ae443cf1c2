package jobs

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadTable parses a tab-separated job table. The first row names the
// columns: "command" (or "system_command") is required, "index" is
// optional and defaults to the 1-based row number, and every other column
// is carried as record metadata and echoed back in results.
func ReadTable(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	// Commands regularly carry quotes that are not CSV quoting.
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read job table: %v", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("job table is empty")
	}

	header := rows[0]
	commandCol, indexCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "command", "system_command":
			commandCol = i
		case "index":
			indexCol = i
		}
	}
	if commandCol < 0 {
		return nil, fmt.Errorf(`job table has no "command" column`)
	}

	table := make(Table, 0, len(rows)-1)
	for n, row := range rows[1:] {
		rec := Record{Index: fmt.Sprint(n + 1), Command: row[commandCol]}
		if indexCol >= 0 {
			rec.Index = strings.TrimSpace(row[indexCol])
		}
		for i, val := range row {
			if i == commandCol || i == indexCol {
				continue
			}
			if rec.Meta == nil {
				rec.Meta = map[string]string{}
			}
			rec.Meta[header[i]] = val
		}
		table = append(table, rec)
	}
	return table, table.Validate()
}

// ReadTableFile reads a tab-separated job table from a file.
func ReadTableFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTable(f)
}
