package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TrustTier is a plugin's verification level (spec.md §9).
type TrustTier string

const (
	TierOfficial    TrustTier = "official"
	TierCommunity   TrustTier = "community"
	TierUnverified  TrustTier = "unverified"
)

// Plugin is a registered WASM/MCP tool plugin's trust record.
type Plugin struct {
	ID           string
	Name         string
	Version      string
	WasmPath     string
	WasmHash     string
	ManifestJSON string
	TrustTier    TrustTier
	Enabled      bool
	CreatedAt    int64
	UpdatedAt    int64
}

var ErrPluginNotFound = errors.New("store: plugin not found")

func (s *Store) UpsertPlugin(ctx context.Context, p Plugin) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plugins (id, name, version, wasm_path, wasm_hash, manifest_json, trust_tier, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			version=excluded.version, wasm_path=excluded.wasm_path, wasm_hash=excluded.wasm_hash,
			manifest_json=excluded.manifest_json, trust_tier=excluded.trust_tier, updated_at=excluded.updated_at`,
		p.ID, p.Name, p.Version, p.WasmPath, p.WasmHash, p.ManifestJSON, string(p.TrustTier),
		boolToInt(p.Enabled), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert plugin: %w", err)
	}
	return nil
}

func (s *Store) GetPluginByName(ctx context.Context, name string) (Plugin, error) {
	var p Plugin
	var tier string
	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, version, wasm_path, wasm_hash, manifest_json, trust_tier, enabled, created_at, updated_at
		 FROM plugins WHERE name = ?`, name,
	).Scan(&p.ID, &p.Name, &p.Version, &p.WasmPath, &p.WasmHash, &p.ManifestJSON, &tier, &enabled, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Plugin{}, ErrPluginNotFound
	}
	if err != nil {
		return Plugin{}, fmt.Errorf("store: get plugin: %w", err)
	}
	p.TrustTier = TrustTier(tier)
	p.Enabled = enabled != 0
	return p, nil
}

// SetPluginEnabled records one-time community-tier consent (spec.md §9).
func (s *Store) SetPluginEnabled(ctx context.Context, name string, enabled bool, updatedAt int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE plugins SET enabled = ?, updated_at = ? WHERE name = ?`,
		boolToInt(enabled), updatedAt, name,
	)
	if err != nil {
		return fmt.Errorf("store: set plugin enabled: %w", err)
	}
	return nil
}

func (s *Store) ListPlugins(ctx context.Context) ([]Plugin, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, version, wasm_path, wasm_hash, manifest_json, trust_tier, enabled, created_at, updated_at
		 FROM plugins ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list plugins: %w", err)
	}
	defer rows.Close()

	var plugins []Plugin
	for rows.Next() {
		var p Plugin
		var tier string
		var enabled int
		if err := rows.Scan(&p.ID, &p.Name, &p.Version, &p.WasmPath, &p.WasmHash, &p.ManifestJSON, &tier, &enabled, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan plugin: %w", err)
		}
		p.TrustTier = TrustTier(tier)
		p.Enabled = enabled != 0
		plugins = append(plugins, p)
	}
	return plugins, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
