// Package store provides durable UnitStore implementations for streamlm.
//
// The estimation core treats the per-unit registry as an externally owned
// collaborator; this package supplies a SQLite-backed registry for streams
// whose unit cardinality outgrows process memory, or that need to survive
// restarts. Unit states are stored as gob blobs keyed by unit id. Units are
// never deleted: a unit's last contribution stays part of the global
// sufficient statistics forever, so removing its row would desynchronize a
// restored model.
package store

import (
	"bytes"
	"database/sql"
	"encoding/gob"

	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/streamlm/mixedlm"
	"github.com/YuminosukeSato/streamlm/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS units (
	id    TEXT PRIMARY KEY,
	state BLOB NOT NULL
);`

// SQLiteStore はSQLiteに永続化するUnitStore。
type SQLiteStore struct {
	db *sql.DB
}

var _ mixedlm.UnitStore = (*SQLiteStore)(nil)

// OpenSQLite はdsn（通常はファイルパス）のデータベースを開き、
// 必要ならスキーマを作成する。
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "store: open sqlite")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "store: create schema")
	}
	return &SQLiteStore{db: db}, nil
}

// Get はユニット状態を読み出す。存在しない場合は(nil, false, nil)。
func (s *SQLiteStore) Get(id string) (*mixedlm.UnitState, bool, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT state FROM units WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "store: get unit %q", id)
	}

	var u mixedlm.UnitState
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&u); err != nil {
		return nil, false, errors.Wrapf(err, "store: decode unit %q", id)
	}
	return &u, true, nil
}

// Put はユニット状態を書き込む（upsert）。
func (s *SQLiteStore) Put(id string, u *mixedlm.UnitState) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(u); err != nil {
		return errors.Wrapf(err, "store: encode unit %q", id)
	}

	_, err := s.db.Exec(
		`INSERT INTO units (id, state) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state`,
		id, buf.Bytes(),
	)
	if err != nil {
		return errors.Wrapf(err, "store: put unit %q", id)
	}
	return nil
}

// Len は保存されているユニット数を返す。
func (s *SQLiteStore) Len() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM units`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "store: count units")
	}
	return n, nil
}

// IDs は保存されている全ユニットの識別子を返す。
func (s *SQLiteStore) IDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM units ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "store: list units")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "store: scan unit id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
