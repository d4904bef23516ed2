package tablestore

import (
	"context"
	"database/sql"
	"fmt"
	"ticguide/internal/observation"

	_ "embed"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// SQLiteStore keeps the table in a sqlite database, only true cells are
// stored.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path, ":memory:" is
// accepted.
func OpenSQLiteStore(path string) (SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return SQLiteStore{}, err
	}
	// a single connection keeps ":memory:" databases alive across calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return SQLiteStore{}, fmt.Errorf("apply schema: %w", err)
	}
	return SQLiteStore{db: db}, nil
}

func (s SQLiteStore) Close() error {
	return s.db.Close()
}

func (s SQLiteStore) Load(ctx context.Context) (*observation.Table, error) {
	table := observation.NewTable()

	// every query is drained before the next one starts, there is only a
	// single connection
	err := s.each(ctx, "select code from sector_column", func(rows *sql.Rows) error {
		var code string
		if err := rows.Scan(&code); err != nil {
			return err
		}
		key, err := observation.ParseColumnKey(code)
		if err != nil {
			return err
		}
		table.AddColumn(key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.each(ctx, "select tic from target", func(rows *sql.Rows) error {
		var tic int64
		if err := rows.Scan(&tic); err != nil {
			return err
		}
		table.AddRow(observation.TargetID(tic))
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(table.Columns()) == 0 && table.Len() == 0 {
		return nil, ErrNotFound
	}

	err = s.each(ctx, "select tic, code from observation", func(rows *sql.Rows) error {
		var tic int64
		var code string
		if err := rows.Scan(&tic, &code); err != nil {
			return err
		}
		key, err := observation.ParseColumnKey(code)
		if err != nil {
			return err
		}
		table.Set(observation.TargetID(tic), key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

func (s SQLiteStore) each(ctx context.Context, query string, scan func(rows *sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Save replaces the content of the database with the table in a single
// transaction.
func (s SQLiteStore) Save(ctx context.Context, table *observation.Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{"delete from observation", "delete from target", "delete from sector_column"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	columns := table.Columns()
	for _, c := range columns {
		if _, err := tx.ExecContext(ctx, "insert into sector_column (code) values (?)", c.String()); err != nil {
			return err
		}
	}

	insertTarget, err := tx.PrepareContext(ctx, "insert into target (tic) values (?)")
	if err != nil {
		return err
	}
	defer insertTarget.Close()
	insertCell, err := tx.PrepareContext(ctx, "insert into observation (tic, code) values (?, ?)")
	if err != nil {
		return err
	}
	defer insertCell.Close()

	for _, id := range table.IDs() {
		if _, err := insertTarget.ExecContext(ctx, int64(id)); err != nil {
			return err
		}
		for _, c := range columns {
			if !table.Observed(id, c) {
				continue
			}
			if _, err := insertCell.ExecContext(ctx, int64(id), c.String()); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}
