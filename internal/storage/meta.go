package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const metaStoreID = "store_id"

// StoreID returns the identifier generated the first time this database
// file was opened. Processes that open the same file get the same ID.
func (db *DB) StoreID(ctx context.Context) (string, error) {
	defer observe(ctx, "store_id", time.Now())

	if _, err := db.writer.ExecContext(ctx,
		`INSERT OR IGNORE INTO store_meta (key, value) VALUES (?, ?)`,
		metaStoreID, uuid.NewString()); err != nil {
		return "", fmt.Errorf("init store id: %w", err)
	}

	var id string
	if err := db.writer.QueryRowContext(ctx,
		`SELECT value FROM store_meta WHERE key = ?`, metaStoreID).Scan(&id); err != nil {
		return "", fmt.Errorf("read store id: %w", err)
	}
	return id, nil
}
