package localdb

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/apperr"
)

// SaveSnapshot stores a named snapshot blob, replacing any previous one.
// Host semantics are non-transactional last-write-wins.
func (db *DB) SaveSnapshot(name string, data []byte) error {
	_, err := db.conn.Exec(`
		INSERT INTO snapshots (name, data, checksum, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			data       = excluded.data,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, name, data, checksum(data))
	if err != nil {
		return fmt.Errorf("localdb: save snapshot %s: %w", name, err)
	}
	return nil
}

// LoadSnapshot returns the stored blob for name. A snapshot whose checksum
// no longer matches its data is treated as absent, not as corruption the
// caller must handle: the store simply starts empty and repulls.
func (db *DB) LoadSnapshot(name string) ([]byte, error) {
	var data []byte
	var cs string
	err := db.conn.QueryRow(`SELECT data, checksum FROM snapshots WHERE name = ?`, name).Scan(&data, &cs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("localdb: load snapshot %s: %w", name, err)
	}
	if cs != "" && cs != checksum(data) {
		return nil, apperr.ErrNotFound
	}
	return data, nil
}

// Cursor returns the persisted since-watermark for (account, purpose),
// zero (the epoch) when none has been stored yet.
func (db *DB) Cursor(account, purpose string) (int64, error) {
	var since int64
	err := db.conn.QueryRow(`SELECT since FROM cursors WHERE account = ? AND purpose = ?`, account, purpose).Scan(&since)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("localdb: cursor %s/%s: %w", account, purpose, err)
	}
	return since, nil
}

// SetCursor persists the since-watermark for (account, purpose).
func (db *DB) SetCursor(account, purpose string, since int64) error {
	_, err := db.conn.Exec(`
		INSERT INTO cursors (account, purpose, since) VALUES (?, ?, ?)
		ON CONFLICT(account, purpose) DO UPDATE SET since = excluded.since
	`, account, purpose, since)
	if err != nil {
		return fmt.Errorf("localdb: set cursor %s/%s: %w", account, purpose, err)
	}
	return nil
}

// DeviceID returns the stable writer identity for this installation,
// creating one on first use.
func (db *DB) DeviceID() (string, error) {
	var id string
	err := db.conn.QueryRow(`SELECT id FROM device LIMIT 1`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("localdb: device id: %w", err)
	}
	id = uuid.NewString()
	if _, err := db.conn.Exec(`INSERT INTO device (id) VALUES (?)`, id); err != nil {
		return "", fmt.Errorf("localdb: store device id: %w", err)
	}
	return id, nil
}

func checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
