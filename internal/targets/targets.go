// Package targets reads the list of targets a run is asked about.
package targets

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"ticguide/internal/crossmatch"
	"ticguide/internal/observation"
	"unicode"
)

var (
	ErrNoTargetsProvided       = errors.New("no targets provided")
	ErrUnrecognizedInputFormat = errors.New("unrecognized input format")
	// ErrInvalidTargetID is returned for ids that are not positive integers.
	ErrInvalidTargetID         = errors.New("invalid target id")
)

// Formats are the input file extensions that can be read.
var Formats = []string{".txt", ".csv"}

// Resolve returns the targets given on the command line if there are any,
// otherwise the targets listed in the input file. Duplicates are dropped,
// keeping the first appearance.
//
// A missing input file is only an error when no targets were given.
func Resolve(stars []observation.TargetID, input string) ([]observation.TargetID, error) {
	if len(stars) > 0 {
		return crossmatch.Dedupe(stars), nil
	}
	if input == "" {
		return nil, ErrNoTargetsProvided
	}

	ids, err := Load(input)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrNoTargetsProvided, input)
	}
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s lists no targets", ErrNoTargetsProvided, input)
	}
	return ids, nil
}

// Load reads targets from a .txt or .csv file.
func Load(path string) ([]observation.TargetID, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(Formats, ext) {
		return nil, fmt.Errorf("%w: '%s', expected one of: %s", ErrUnrecognizedInputFormat, ext, strings.Join(Formats, ", "))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var ids []observation.TargetID
	if ext == ".csv" {
		ids, err = ReadCSV(file)
	} else {
		ids, err = ReadLines(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return crossmatch.Dedupe(ids), nil
}

// ReadLines reads one target per line, lines that do not start with a digit
// (headers, comments, blank lines) are skipped.
func ReadLines(r io.Reader) ([]observation.TargetID, error) {
	var ids []observation.TargetID

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if line == "" || !unicode.IsDigit(rune(line[0])) {
			continue
		}
		id, err := ParseID(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ReadCSV reads the 'tic' column of a csv with a header, a csv without one
// is read line by line.
func ReadCSV(r io.Reader) ([]observation.TargetID, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	column := slices.IndexFunc(records[0], func(name string) bool {
		return strings.EqualFold(strings.TrimSpace(name), "tic")
	})
	if column < 0 {
		// single column files with no header
		var ids []observation.TargetID
		for i, record := range records {
			cell := record[0]
			if cell == "" || !unicode.IsDigit(rune(cell[0])) {
				continue
			}
			id, err := ParseID(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	var ids []observation.TargetID
	for i, record := range records[1:] {
		if column >= len(record) || strings.TrimSpace(record[column]) == "" {
			continue
		}
		id, err := ParseID(record[column])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ParseID parses a target id, with or without a 'TIC' prefix.
func ParseID(text string) (observation.TargetID, error) {
	text = strings.TrimSpace(text)
	if len(text) >= 3 && strings.EqualFold(text[:3], "tic") {
		text = strings.TrimSpace(text[3:])
	}
	id, err := strconv.ParseUint(text, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w '%s'", ErrInvalidTargetID, text)
	}
	return observation.TargetID(id), nil
}
