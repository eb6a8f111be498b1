package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-network-engine/internal/network"
)

var ErrNotFound = errors.New("network not found")

type NetworkRow struct {
	NetworkID uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type NetworksRepo struct {
	pool *pgxpool.Pool
}

func NewNetworksRepo(pool *pgxpool.Pool) *NetworksRepo {
	return &NetworksRepo{pool: pool}
}

// EnsureSchema creates the networks table when it does not exist yet.
// Called once on startup.
func (r *NetworksRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS networks (
			network_id uuid PRIMARY KEY,
			name text NOT NULL,
			payload jsonb NOT NULL,
			created_at timestamptz NOT NULL,
			updated_at timestamptz NOT NULL
		)
	`)
	return err
}

// Save upserts the full network document as jsonb.
func (r *NetworksRepo) Save(ctx context.Context, n *network.Network) error {
	payload, err := json.Marshal(n.Export())
	if err != nil {
		return fmt.Errorf("encode network %s: %w", n.ID, err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO networks (network_id, name, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (network_id) DO UPDATE SET
			name = EXCLUDED.name,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`, n.ID, n.Name, payload, n.CreatedAt, time.Now().UTC())
	return err
}

func (r *NetworksRepo) Load(ctx context.Context, id uuid.UUID) (*network.Network, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `
		SELECT payload FROM networks WHERE network_id = $1
	`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var doc network.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode network %s: %w", id, err)
	}
	return network.FromDocument(doc)
}

func (r *NetworksRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM networks WHERE network_id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NetworksRepo) List(ctx context.Context, limit int, offset int) ([]NetworkRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT network_id, name, created_at, updated_at
		FROM networks
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NetworkRow
	for rows.Next() {
		var row NetworkRow
		if err := rows.Scan(&row.NetworkID, &row.Name, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
