// Package scripts writes and runs per-target download scripts, each one the
// manifest lines of the sectors a target was observed in.
package scripts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"ticguide/internal/components/telemetry"
	"ticguide/internal/crossmatch"
	"ticguide/internal/mast"
	"ticguide/internal/observation"
	"ticguide/internal/sectorindex"
)

const (
	report_builder_fetch = "builder.fetch-manifest"
	report_run           = "run"
	report_run_cleanup   = "run.cleanup"
)

const (
	Shebang = "#!/bin/sh\n"
	// TargetsDir is the directory under the working path holding one
	// directory per target.
	TargetsDir = "targets"
	ScriptName = "download.sh"
)

type Fetcher interface {
	FetchManifest(ctx context.Context, resource mast.Resource) (mast.Manifest, error)
}

// Script is the download script of a single target.
type Script struct {
	TargetID observation.TargetID
	Lines    []string
}

func (s Script) String() string {
	var out strings.Builder
	out.WriteString(Shebang)
	for _, line := range s.Lines {
		out.WriteString(line)
		out.WriteString("\n")
	}
	return out.String()
}

// Builder collects manifest lines for targets, a manifest is fetched at most
// once per builder.
type Builder struct {
	fetcher   Fetcher
	index     sectorindex.Index
	tel       telemetry.API
	manifests map[observation.ColumnKey]mast.Manifest
}

func NewBuilder(fetcher Fetcher, index sectorindex.Index, tel telemetry.API) *Builder {
	return &Builder{
		fetcher:   fetcher,
		index:     index,
		tel:       telemetry.NewScopedAPI("scripts", tel),
		manifests: make(map[observation.ColumnKey]mast.Manifest),
	}
}

func (b *Builder) manifest(ctx context.Context, column observation.ColumnKey) (mast.Manifest, error) {
	if m, ok := b.manifests[column]; ok {
		return m, nil
	}
	resource, ok := b.index.Locator(column)
	if !ok {
		return mast.Manifest{}, fmt.Errorf("no manifest indexed for %s", column)
	}
	m, err := b.fetcher.FetchManifest(ctx, resource)
	if err != nil {
		b.tel.ReportBroken(report_builder_fetch, err, column.String())
		return mast.Manifest{}, fmt.Errorf("fetch %s: %w", column, err)
	}
	b.manifests[column] = m
	return m, nil
}

// Build returns a script for every target of the result, in result order.
// Lines follow the canonical column order, only the given cadences are
// included. Targets never observed get a script with no download lines.
func (b *Builder) Build(ctx context.Context, result crossmatch.Result, cadences []observation.Cadence) ([]Script, error) {
	ids := result.IDs()
	lines := make(map[observation.TargetID][]string, len(ids))

	for _, column := range result.Columns() {
		if !slices.Contains(cadences, column.Cadence) {
			continue
		}
		needed := false
		for _, id := range ids {
			if result.Observed(id, column) {
				needed = true
				break
			}
		}
		if !needed {
			continue
		}

		m, err := b.manifest(ctx, column)
		if err != nil {
			return nil, err
		}
		for _, entry := range m.Entries {
			if result.Observed(entry.TargetID, column) {
				lines[entry.TargetID] = append(lines[entry.TargetID], entry.Line)
			}
		}
	}

	scripts := make([]Script, len(ids))
	for i, id := range ids {
		scripts[i] = Script{TargetID: id, Lines: lines[id]}
	}
	return scripts, nil
}

// Path returns where the script of a target lives under root.
func Path(root string, id observation.TargetID) string {
	return filepath.Join(root, TargetsDir, strconv.FormatUint(uint64(id), 10), ScriptName)
}

// Write saves each script under root, creating the target directories.
func Write(root string, scripts []Script) ([]string, error) {
	paths := make([]string, 0, len(scripts))
	for _, s := range scripts {
		path := Path(root, s.TargetID)
		err := os.MkdirAll(filepath.Dir(path), 0755)
		if err != nil {
			return paths, err
		}
		err = os.WriteFile(path, []byte(s.String()), 0755)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Run executes each script with sh from within its own directory and
// removes it once it has finished. It stops at the first script that fails,
// which is left in place.
func Run(ctx context.Context, paths []string, tel telemetry.API) error {
	tel = telemetry.NewScopedAPI("scripts", tel)

	for _, path := range paths {
		dir, name := filepath.Split(path)
		tel.ReportDebug("running download script", path)

		cmd := exec.CommandContext(ctx, "sh", name)
		cmd.Dir = dir
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			tel.ReportBroken(report_run, err, path)
			return fmt.Errorf("run %s: %w", path, err)
		}

		if err := os.Remove(path); err != nil {
			tel.ReportWarning(report_run_cleanup, err, path)
		}
	}
	return nil
}
