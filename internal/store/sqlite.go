package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite keeps one row per collection with the JSON payload.
type SQLite struct {
	db *sqlx.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sqlx.Connect("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	_, err = db.Exec(`create table if not exists collections (
		name       text not null primary key,
		payload    text not null,
		updated_at DATETIME not null
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating collections table: %w", err)
	}

	return &SQLite{db: db}, nil
}

type collectionRow struct {
	Name    string `db:"name"`
	Payload string `db:"payload"`
}

func (s *SQLite) Load(ctx context.Context) (*Data, error) {
	var rows []collectionRow
	if err := s.db.SelectContext(ctx, &rows, `select name, payload from collections`); err != nil {
		return nil, fmt.Errorf("loading collections: %w", err)
	}

	raw := make(map[Collection][]byte, len(rows))
	for _, row := range rows {
		raw[Collection(row.Name)] = []byte(row.Payload)
	}
	return decode(raw)
}

func (s *SQLite) Save(ctx context.Context, c Collection, v any) error {
	payload, err := encode(c, v)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `insert into collections (name, payload, updated_at)
		values (?, ?, ?)
		on conflict(name) do update set payload = excluded.payload, updated_at = excluded.updated_at`,
		string(c), string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving %s: %w", c, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
