// Package tablestore persists observation tables.
//
// A store is read once at the start of a sync and written once at the end,
// it does no locking, two runs against the same path race and the last
// writer wins.
package tablestore

import (
	"context"
	"errors"
	"fmt"
	"ticguide/internal/observation"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("table not found")

type Store interface {
	Load(ctx context.Context) (*observation.Table, error)
	Save(ctx context.Context, table *observation.Table) error
}

type Kind string

const (
	KindCSV    Kind = "csv"
	KindSQLite Kind = "sqlite"
)

// Open opens a store of the given kind at a path, the caller must Close it
// when done.
func Open(kind Kind, path string) (Store, func() error, error) {
	switch kind {
	case KindCSV, "":
		return NewCSVStore(path), func() error { return nil }, nil
	case KindSQLite:
		store, err := OpenSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind '%s', expected one of: csv, sqlite", kind)
	}
}
