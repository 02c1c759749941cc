// README: Partner directory (availability and last known location).
package dispatch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"streeteats/internal/types"
)

type Directory interface {
	Get(ctx context.Context, id types.ID) (Partner, error)
	// FirstAvailable returns the most recently active eligible partner.
	FirstAvailable(ctx context.Context) (Partner, bool, error)
	SetOnline(ctx context.Context, id types.ID, online bool, at time.Time) error
	SetLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error
}

const partnerColumns = `id, name, phone, status, is_active, is_online, lat, lng, updated_at`

type PgDirectory struct {
	db *pgxpool.Pool
}

func NewPgDirectory(db *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{db: db}
}

func (d *PgDirectory) Get(ctx context.Context, id types.ID) (Partner, error) {
	row := d.db.QueryRow(ctx, `SELECT `+partnerColumns+` FROM delivery_partners WHERE id = $1`, string(id))
	p, err := scanPartner(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Partner{}, ErrPartnerNotFound
	}
	return p, err
}

func (d *PgDirectory) FirstAvailable(ctx context.Context) (Partner, bool, error) {
	row := d.db.QueryRow(ctx, `
		SELECT `+partnerColumns+` FROM delivery_partners
		WHERE status = 'approved' AND is_active AND is_online
		ORDER BY updated_at DESC
		LIMIT 1`)
	p, err := scanPartner(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Partner{}, false, nil
	}
	if err != nil {
		return Partner{}, false, err
	}
	return p, true, nil
}

func (d *PgDirectory) SetOnline(ctx context.Context, id types.ID, online bool, at time.Time) error {
	tag, err := d.db.Exec(ctx, `
		UPDATE delivery_partners SET is_online = $1, updated_at = $2 WHERE id = $3`,
		online, at, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPartnerNotFound
	}
	return nil
}

func (d *PgDirectory) SetLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	tag, err := d.db.Exec(ctx, `
		UPDATE delivery_partners SET lat = $1, lng = $2, updated_at = $3 WHERE id = $4`,
		p.Lat, p.Lng, at, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPartnerNotFound
	}
	return nil
}

func scanPartner(row pgx.Row) (Partner, error) {
	var p Partner
	var lat, lng *float64
	if err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.Status, &p.IsActive, &p.IsOnline, &lat, &lng, &p.UpdatedAt); err != nil {
		return Partner{}, err
	}
	if lat != nil && lng != nil {
		p.Location = &types.Point{Lat: *lat, Lng: *lng}
	}
	return p, nil
}

type MemoryDirectory struct {
	mu       sync.RWMutex
	partners map[types.ID]Partner
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{partners: make(map[types.ID]Partner)}
}

// Put registers or replaces a partner.
func (m *MemoryDirectory) Put(p Partner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partners[p.ID] = p
}

func (m *MemoryDirectory) Get(_ context.Context, id types.ID) (Partner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.partners[id]
	if !ok {
		return Partner{}, ErrPartnerNotFound
	}
	return p, nil
}

func (m *MemoryDirectory) FirstAvailable(_ context.Context) (Partner, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var eligible []Partner
	for _, p := range m.partners {
		if p.Eligible() {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return Partner{}, false, nil
	}
	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].UpdatedAt.Equal(eligible[j].UpdatedAt) {
			return eligible[i].UpdatedAt.After(eligible[j].UpdatedAt)
		}
		return eligible[i].ID < eligible[j].ID
	})
	return eligible[0], true, nil
}

func (m *MemoryDirectory) SetOnline(_ context.Context, id types.ID, online bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partners[id]
	if !ok {
		return ErrPartnerNotFound
	}
	p.IsOnline = online
	p.UpdatedAt = at
	m.partners[id] = p
	return nil
}

func (m *MemoryDirectory) SetLocation(_ context.Context, id types.ID, pt types.Point, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partners[id]
	if !ok {
		return ErrPartnerNotFound
	}
	loc := pt
	p.Location = &loc
	p.UpdatedAt = at
	m.partners[id] = p
	return nil
}
