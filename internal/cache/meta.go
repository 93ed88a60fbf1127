package cache

import (
	"context"
	"database/sql"
)

// GetMeta returns the stored value for key, or ("", false) if unset.
func (c *Cache) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.DB.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetMeta upserts key's value.
func (c *Cache) SetMeta(ctx context.Context, key, value string) error {
	_, err := c.DB.ExecContext(ctx, `
INSERT INTO meta (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
