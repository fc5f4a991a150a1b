package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Well-known setting names.
const (
	SettingOutputFile    = "output-file"
	SettingActiveContext = "active-context"
)

// GetSetting returns the value of a setting and whether it exists.
func (t *Tx) GetSetting(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = ?`, name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting %q: %w", name, err)
	}
	return value, true, nil
}

// SetSetting creates or replaces a setting.
func (t *Tx) SetSetting(ctx context.Context, name, value string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO settings (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, name, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", name, err)
	}
	return nil
}

// DeleteSetting removes a setting. Removing a missing setting is not an error.
func (t *Tx) DeleteSetting(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM settings WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete setting %q: %w", name, err)
	}
	return nil
}

// ListSettings returns all settings keyed by name.
func (t *Tx) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT name, value FROM settings ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	settings := map[string]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return settings, nil
}
