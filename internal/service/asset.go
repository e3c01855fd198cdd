package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// AssetService persists assets in DuckDB and announces changes on the bus.
type AssetService struct {
	db  *sql.DB
	bus *EventBus
	mu  sync.Mutex // serializes writes so existence checks and inserts agree
}

// NewAssetService creates a new asset service.
func NewAssetService(db *sql.DB, bus *EventBus) *AssetService {
	return &AssetService{db: db, bus: bus}
}

const assetColumns = `id, type, latitude, longitude, strftime(installation_date, '%Y-%m-%d'),
	manufacturer, model, capacity, condition`

func scanAsset(row interface{ Scan(...any) error }) (Asset, error) {
	var a Asset
	var typ, cond string
	err := row.Scan(&a.ID, &typ, &a.Latitude, &a.Longitude, &a.InstallationDate,
		&a.Manufacturer, &a.Model, &a.Capacity, &cond)
	a.Type = AssetType(typ)
	a.Condition = Condition(cond)
	return a, err
}

// ListAssets returns every asset ordered by ID.
func (s *AssetService) ListAssets(ctx context.Context) ([]Asset, error) {
	assets, _, err := s.ListPage(ctx, 0, 0)
	return assets, err
}

// ListPage returns a page of assets ordered by ID plus the total count.
// A limit of zero returns everything from offset.
func (s *AssetService) ListPage(ctx context.Context, offset, limit int) ([]Asset, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM assets`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assets: %w", err)
	}

	query := `SELECT ` + assetColumns + ` FROM assets ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	} else if offset > 0 {
		query += ` OFFSET ?`
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	assets := []Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, total, rows.Err()
}

// GetAsset returns an asset by ID or ErrNotFound.
func (s *AssetService) GetAsset(ctx context.Context, id string) (Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, fmt.Errorf("asset %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Asset{}, fmt.Errorf("get asset %q: %w", id, err)
	}
	return a, nil
}

// CreateAsset inserts a new asset. The ID must be unused.
func (s *AssetService) CreateAsset(ctx context.Context, a Asset) (Asset, error) {
	a = a.Normalize()
	if err := a.Validate(); err != nil {
		return Asset{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.exists(ctx, a.ID)
	if err != nil {
		return Asset{}, err
	}
	if exists {
		return Asset{}, fmt.Errorf("asset %q: %w", a.ID, ErrExists)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO assets
		(id, type, latitude, longitude, installation_date, manufacturer, model, capacity, condition)
		VALUES (?, ?, ?, ?, CAST(? AS DATE), ?, ?, ?, ?)`,
		a.ID, string(a.Type), a.Latitude, a.Longitude, a.InstallationDate,
		a.Manufacturer, a.Model, a.Capacity, string(a.Condition))
	if err != nil {
		return Asset{}, fmt.Errorf("insert asset %q: %w", a.ID, err)
	}

	s.bus.Publish(Event{Resource: ResourceAssets, Action: ActionCreated, ID: a.ID})
	return a, nil
}

// UpdateAsset replaces the full record keyed by a.ID.
func (s *AssetService) UpdateAsset(ctx context.Context, a Asset) (Asset, error) {
	a = a.Normalize()
	if err := a.Validate(); err != nil {
		return Asset{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.exists(ctx, a.ID)
	if err != nil {
		return Asset{}, err
	}
	if !exists {
		return Asset{}, fmt.Errorf("asset %q: %w", a.ID, ErrNotFound)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE assets SET
		type = ?, latitude = ?, longitude = ?, installation_date = CAST(? AS DATE),
		manufacturer = ?, model = ?, capacity = ?, condition = ?
		WHERE id = ?`,
		string(a.Type), a.Latitude, a.Longitude, a.InstallationDate,
		a.Manufacturer, a.Model, a.Capacity, string(a.Condition), a.ID)
	if err != nil {
		return Asset{}, fmt.Errorf("update asset %q: %w", a.ID, err)
	}

	s.bus.Publish(Event{Resource: ResourceAssets, Action: ActionUpdated, ID: a.ID})
	return a, nil
}

// DeleteAsset removes an asset by ID.
func (s *AssetService) DeleteAsset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("asset %q: %w", id, ErrNotFound)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete asset %q: %w", id, err)
	}

	s.bus.Publish(Event{Resource: ResourceAssets, Action: ActionDeleted, ID: id})
	return nil
}

// Stats aggregates the registry by type and condition.
func (s *AssetService) Stats(ctx context.Context) (AssetStats, error) {
	stats := AssetStats{ByType: map[string]int{}, ByCondition: map[string]int{}}

	count := func(col string, into map[string]int) error {
		rows, err := s.db.QueryContext(ctx,
			fmt.Sprintf(`SELECT %s, count(*) FROM assets GROUP BY %s`, col, col))
		if err != nil {
			return fmt.Errorf("stats by %s: %w", col, err)
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				return err
			}
			into[key] = n
			if col == "type" {
				stats.Total += n
			}
		}
		return rows.Err()
	}
	if err := count("type", stats.ByType); err != nil {
		return stats, err
	}
	if err := count("condition", stats.ByCondition); err != nil {
		return stats, err
	}

	if stats.Total > 0 {
		var minLon, minLat, maxLon, maxLat float64
		err := s.db.QueryRowContext(ctx,
			`SELECT min(longitude), min(latitude), max(longitude), max(latitude) FROM assets`).
			Scan(&minLon, &minLat, &maxLon, &maxLat)
		if err != nil {
			return stats, fmt.Errorf("stats bounds: %w", err)
		}
		stats.Bounds = []float64{minLon, minLat, maxLon, maxLat}
	}
	return stats, nil
}

func (s *AssetService) exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM assets WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup asset %q: %w", id, err)
	}
	return n > 0, nil
}
