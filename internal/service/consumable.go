package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// maxPanchayatLookups bounds concurrent lookups for one batch.
const maxPanchayatLookups = 8

// ConsumableService manages the consumable inventory and panchayat names.
type ConsumableService struct {
	db  *sql.DB
	bus *EventBus
}

// NewConsumableService creates a new consumable service.
func NewConsumableService(db *sql.DB, bus *EventBus) *ConsumableService {
	return &ConsumableService{db: db, bus: bus}
}

// ValidateConsumable checks required fields and the due date.
func ValidateConsumable(c Consumable) error {
	var verr ValidationError
	if strings.TrimSpace(c.ItemName) == "" {
		verr.Add("itemName", "is required")
	}
	if c.CurrentQuantity < 0 {
		verr.Add("currentQuantity", "must not be negative")
	}
	if c.MinimumThreshold < 0 {
		verr.Add("minimumThreshold", "must not be negative")
	}
	if _, err := time.Parse(DateLayout, c.ReplenishmentDueDate); err != nil {
		verr.Add("replenishmentDueDate", "must be a date (YYYY-MM-DD)")
	}
	if strings.TrimSpace(c.PanchayatID) == "" {
		verr.Add("panchayatId", "is required")
	}
	return verr.OrNil()
}

// List returns all consumables ordered by item name.
func (s *ConsumableService) List(ctx context.Context) ([]Consumable, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, item_name, current_quantity, minimum_threshold,
		strftime(replenishment_due_date, '%Y-%m-%d'), panchayat_id
		FROM consumables ORDER BY item_name, id`)
	if err != nil {
		return nil, fmt.Errorf("list consumables: %w", err)
	}
	defer rows.Close()

	items := []Consumable{}
	for rows.Next() {
		var c Consumable
		if err := rows.Scan(&c.ID, &c.ItemName, &c.CurrentQuantity, &c.MinimumThreshold,
			&c.ReplenishmentDueDate, &c.PanchayatID); err != nil {
			return nil, fmt.Errorf("scan consumable: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// Create inserts a consumable, generating an ID when none is given.
func (s *ConsumableService) Create(ctx context.Context, c Consumable) (Consumable, error) {
	if err := ValidateConsumable(c); err != nil {
		return Consumable{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.PanchayatName = ""

	_, err := s.db.ExecContext(ctx, `INSERT INTO consumables
		(id, item_name, current_quantity, minimum_threshold, replenishment_due_date, panchayat_id)
		VALUES (?, ?, ?, ?, CAST(? AS DATE), ?)`,
		c.ID, c.ItemName, c.CurrentQuantity, c.MinimumThreshold, c.ReplenishmentDueDate, c.PanchayatID)
	if err != nil {
		return Consumable{}, fmt.Errorf("insert consumable: %w", err)
	}

	s.bus.Publish(Event{Resource: ResourceConsumables, Action: ActionCreated, ID: c.ID})
	return c, nil
}

// Delete removes a consumable by ID.
func (s *ConsumableService) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM consumables WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete consumable %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("consumable %q: %w", id, ErrNotFound)
	}

	s.bus.Publish(Event{Resource: ResourceConsumables, Action: ActionDeleted, ID: id})
	return nil
}

// PutPanchayat inserts or renames a panchayat.
func (s *ConsumableService) PutPanchayat(ctx context.Context, p Panchayat) (Panchayat, error) {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		var verr ValidationError
		if strings.TrimSpace(p.ID) == "" {
			verr.Add("id", "is required")
		}
		if strings.TrimSpace(p.Name) == "" {
			verr.Add("name", "is required")
		}
		return Panchayat{}, &verr
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO panchayats (id, name) VALUES (?, ?)`, p.ID, p.Name); err != nil {
		return Panchayat{}, fmt.Errorf("put panchayat %q: %w", p.ID, err)
	}
	return p, nil
}

// Panchayat looks up a panchayat by ID.
func (s *ConsumableService) Panchayat(ctx context.Context, id string) (Panchayat, error) {
	var p Panchayat
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM panchayats WHERE id = ?`, id).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Panchayat{}, fmt.Errorf("panchayat %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Panchayat{}, fmt.Errorf("get panchayat %q: %w", id, err)
	}
	return p, nil
}

// ListExpanded returns consumables with panchayat names filled in.
func (s *ConsumableService) ListExpanded(ctx context.Context) ([]Consumable, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	names, err := ResolvePanchayatNames(ctx, items, s.Panchayat)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].PanchayatName = names[items[i].PanchayatID]
	}
	return items, nil
}

// PanchayatLookup fetches a single panchayat.
type PanchayatLookup func(ctx context.Context, id string) (Panchayat, error)

// ResolvePanchayatNames looks up the name of every distinct panchayat
// referenced by items. Each ID is fetched once; lookups run in parallel and
// the first failure cancels the rest. Unknown panchayats resolve to "".
func ResolvePanchayatNames(ctx context.Context, items []Consumable, lookup PanchayatLookup) (map[string]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, c := range items {
		if c.PanchayatID == "" {
			continue
		}
		if _, ok := seen[c.PanchayatID]; ok {
			continue
		}
		seen[c.PanchayatID] = struct{}{}
		ids = append(ids, c.PanchayatID)
	}

	names := make([]string, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPanchayatLookups)
	for i, id := range ids {
		g.Go(func() error {
			p, err := lookup(gctx, id)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			names[i] = p.Name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make(map[string]string, len(ids))
	for i, id := range ids {
		result[id] = names[i]
	}
	return result, nil
}
