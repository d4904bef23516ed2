package tablestore

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"ticguide/internal/crossmatch"
	"ticguide/internal/observation"

	"github.com/natefinch/atomic"
)

// WriteSelected writes a cross-match result with the same layout as the
// full table, rows follow the order of the result.
func WriteSelected(w io.Writer, result crossmatch.Result) error {
	return writeRows(w, result, result.IDs())
}

// SaveSelected writes the result to a file atomically.
func SaveSelected(path string, result crossmatch.Result) error {
	var buffer bytes.Buffer
	if err := WriteSelected(&buffer, result); err != nil {
		return err
	}
	return atomic.WriteFile(path, &buffer)
}

// WriteTotals writes the number of sectors each target was observed in per
// cadence, targets never observed in any of the cadences are left out. Rows
// go by fast total descending and then short total descending.
func WriteTotals(w io.Writer, table *observation.Table, cadences []observation.Cadence) error {
	ordered := crossmatch.Match(table, table.IDs(), crossmatch.OrderTotals)

	writer := csv.NewWriter(w)
	head := []string{"tic"}
	for _, c := range cadences {
		head = append(head, c.String())
	}
	if err := writer.Write(head); err != nil {
		return err
	}

	for _, id := range ordered.IDs() {
		row := []string{strconv.FormatUint(uint64(id), 10)}
		observed := false
		for _, c := range cadences {
			total := ordered.Total(id, c)
			if total > 0 {
				observed = true
			}
			row = append(row, strconv.Itoa(total))
		}
		if !observed {
			continue
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func SaveTotals(path string, table *observation.Table, cadences []observation.Cadence) error {
	var buffer bytes.Buffer
	if err := WriteTotals(&buffer, table, cadences); err != nil {
		return err
	}
	return atomic.WriteFile(path, &buffer)
}
