package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Shop is a connected store whose credentials let the sync workers reach
// the remote Admin API. Name is the myshopify subdomain used as the key
// in every other table.
type Shop struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Domain      string     `json:"domain"`
	AccessToken string     `json:"-"`
	Scopes      string     `json:"scopes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func (db *DB) UpsertShop(s *Shop) error {
	query := db.Q(`INSERT INTO shops (name, domain, access_token, scopes, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(name) DO UPDATE SET
			domain = excluded.domain,
			access_token = excluded.access_token,
			scopes = excluded.scopes,
			updated_at = excluded.updated_at`)
	if _, err := db.Exec(query, s.Name, s.Domain, s.AccessToken, s.Scopes); err != nil {
		return fmt.Errorf("upsert shop: %w", err)
	}
	return nil
}

func (db *DB) GetShop(name string) (*Shop, error) {
	var s Shop
	var createdAt, updatedAt any
	query := db.Q(`SELECT id, name, domain, access_token, scopes, created_at, updated_at
		FROM shops WHERE name = ?`)
	err := db.QueryRow(query, name).Scan(&s.ID, &s.Name, &s.Domain, &s.AccessToken,
		&s.Scopes, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shop: %w", err)
	}
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTimePtr(updatedAt)
	return &s, nil
}

func (db *DB) ListShops() ([]*Shop, error) {
	rows, err := db.Query(db.Q(`SELECT id, name, domain, access_token, scopes, created_at, updated_at
		FROM shops ORDER BY name`))
	if err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}
	defer rows.Close()
	var shops []*Shop
	for rows.Next() {
		var s Shop
		var createdAt, updatedAt any
		if err := rows.Scan(&s.ID, &s.Name, &s.Domain, &s.AccessToken, &s.Scopes,
			&createdAt, &updatedAt); err != nil {
			return nil, err
		}
		s.CreatedAt = parseTime(createdAt)
		s.UpdatedAt = parseTimePtr(updatedAt)
		shops = append(shops, &s)
	}
	return shops, rows.Err()
}

func (db *DB) DeleteShop(name string) error {
	if _, err := db.Exec(db.Q(`DELETE FROM shops WHERE name = ?`), name); err != nil {
		return fmt.Errorf("delete shop: %w", err)
	}
	return nil
}
