package mast

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"ticguide/internal/observation"
)

// ParseManifest reads a download script, every line that is neither blank nor
// a comment looks like:
//
//	curl -C - -L -o tess2018206045859-s0001-0000000008195886-0120-s_lc.fits https://...
//
// the target id is the third dash separated part of the output filename.
func ParseManifest(r io.Reader) ([]ManifestEntry, error) {
	var entries []ManifestEntry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		id, err := parseTargetID(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedManifest, lineNo, err)
		}
		entries = append(entries, ManifestEntry{TargetID: id, Line: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func parseTargetID(line string) (observation.TargetID, error) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return 0, fmt.Errorf("expected at least 6 fields, got %d", len(fields))
	}
	parts := strings.Split(fields[5], "-")
	if len(parts) < 3 {
		return 0, fmt.Errorf("unexpected filename '%s'", fields[5])
	}
	id, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse tic '%s': %w", parts[2], err)
	}
	if id == 0 {
		return 0, fmt.Errorf("tic must be positive in '%s'", fields[5])
	}
	return observation.TargetID(id), nil
}
