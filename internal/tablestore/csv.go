package tablestore

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"ticguide/internal/observation"

	"github.com/natefinch/atomic"
)

// CSVStore keeps the table as a csv file with the header
//
//	tic,F001,...,FTOT,S001,...,STOT
//
// and one row per target with True/False cells. Total columns are written for
// convenience but ignored when loading, they are always derived again.
type CSVStore struct {
	path string
}

func NewCSVStore(path string) CSVStore {
	return CSVStore{path: path}
}

func (s CSVStore) Path() string {
	return s.path
}

func (s CSVStore) Load(_ context.Context) (*observation.Table, error) {
	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	table, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return table, nil
}

func (s CSVStore) Save(_ context.Context, table *observation.Table) error {
	var buffer bytes.Buffer
	if err := WriteCSV(&buffer, table); err != nil {
		return err
	}
	return atomic.WriteFile(s.path, &buffer)
}

// columnLayout is anything with sector-cadence columns.
type columnLayout interface {
	ColumnsOf(cadence observation.Cadence) []observation.ColumnKey
	Observed(id observation.TargetID, column observation.ColumnKey) bool
	Total(id observation.TargetID, cadence observation.Cadence) int
}

// header lays out the columns of each cadence followed by its total.
func header(layout columnLayout) []string {
	head := []string{"tic"}
	for _, cadence := range observation.Cadences {
		cols := layout.ColumnsOf(cadence)
		if len(cols) == 0 {
			continue
		}
		for _, c := range cols {
			head = append(head, c.String())
		}
		head = append(head, cadence.TotalCode())
	}
	return head
}

func record(layout columnLayout, id observation.TargetID) []string {
	out := []string{strconv.FormatUint(uint64(id), 10)}
	for _, cadence := range observation.Cadences {
		cols := layout.ColumnsOf(cadence)
		if len(cols) == 0 {
			continue
		}
		for _, c := range cols {
			out = append(out, formatBool(layout.Observed(id, c)))
		}
		out = append(out, strconv.Itoa(layout.Total(id, cadence)))
	}
	return out
}

func writeRows(w io.Writer, layout columnLayout, ids []observation.TargetID) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header(layout)); err != nil {
		return err
	}
	for _, id := range ids {
		if err := writer.Write(record(layout, id)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCSV writes every row of the table in ascending tic order.
func WriteCSV(w io.Writer, table *observation.Table) error {
	return writeRows(w, table, table.IDs())
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parseBool(cell string) (bool, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return false, nil
	}
	return strconv.ParseBool(cell)
}

func ReadCSV(r io.Reader) (*observation.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	head, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return observation.NewTable(), nil
	}
	if err != nil {
		return nil, err
	}
	if len(head) == 0 || strings.TrimSpace(head[0]) != "tic" {
		return nil, fmt.Errorf("expected first column to be 'tic', got %v", head)
	}

	table := observation.NewTable()
	// nil entries are total columns
	columns := make([]*observation.ColumnKey, len(head))
	for i, code := range head[1:] {
		code = strings.TrimSpace(code)
		if observation.IsTotalCode(code) {
			continue
		}
		key, err := observation.ParseColumnKey(code)
		if err != nil {
			return nil, err
		}
		table.AddColumn(key)
		columns[i+1] = &key
	}

	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) != len(head) {
			return nil, fmt.Errorf("line %d: expected %d cells, got %d", line, len(head), len(row))
		}

		id, err := strconv.ParseUint(strings.TrimSpace(row[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse tic: %w", line, err)
		}
		table.AddRow(observation.TargetID(id))

		for i, cell := range row[1:] {
			column := columns[i+1]
			if column == nil {
				continue
			}
			observed, err := parseBool(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %s: %w", line, column, err)
			}
			if observed {
				table.Set(observation.TargetID(id), *column)
			}
		}
	}

	return table, nil
}
