// Package store persists the chain as an append-only sequence of blocks in
// SQLite. Blocks are stored as their canonical JSON encoding so a reloaded
// chain re-derives byte-identical hashes.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kontourlabs/kontourd/chain"
)

const schema = `
CREATE TABLE IF NOT EXISTS blocks (
	height INTEGER PRIMARY KEY,
	hash   TEXT NOT NULL UNIQUE,
	data   BLOB NOT NULL
);`

// SQLite is a chain.BlockStore backed by a WAL-mode SQLite database.
type SQLite struct {
	db *sql.DB
}

// Open creates or opens the block database at path.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Append persists one block. Heights and hashes are unique; re-appending an
// existing block fails.
func (s *SQLite) Append(b *chain.Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("store: encode block %d: %w", b.Index, err)
	}
	if _, err := s.db.Exec(
		"INSERT INTO blocks (height, hash, data) VALUES (?, ?, ?)",
		b.Index, b.Hash, data,
	); err != nil {
		return fmt.Errorf("store: append block %d: %w", b.Index, err)
	}
	return nil
}

// Load returns the persisted chain in height order.
func (s *SQLite) Load() ([]*chain.Block, error) {
	rows, err := s.db.Query("SELECT data FROM blocks ORDER BY height")
	if err != nil {
		return nil, fmt.Errorf("store: load blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*chain.Block
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("store: scan block: %w", err)
		}
		var b chain.Block
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("store: decode block: %w", err)
		}
		blocks = append(blocks, &b)
	}
	return blocks, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
