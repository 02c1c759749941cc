// README: Order store backed by PostgreSQL; sub-records live in JSONB columns.
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"streeteats/internal/types"
)

const uniqueViolation = "23505"

const orderColumns = `
	id, order_number, customer_id, vendor_id, delivery_partner_id, order_type,
	status, version, items, pricing, delivery_address, pickup_lat, pickup_lng,
	special_instructions, payment, timing, rating, cancellation, status_history,
	created_at, updated_at`

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Insert(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	pricing, err := json.Marshal(o.Pricing)
	if err != nil {
		return err
	}
	address, err := marshalOptional(o.DeliveryAddress)
	if err != nil {
		return err
	}
	payment, err := json.Marshal(o.Payment)
	if err != nil {
		return err
	}
	timing, err := json.Marshal(o.Timing)
	if err != nil {
		return err
	}
	history, err := json.Marshal(o.StatusHistory)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NULL, NULL, $17, $18, $19)`,
		string(o.ID), o.OrderNumber, string(o.CustomerID), string(o.VendorID),
		toStringPtr(o.DeliveryPartnerID), string(o.OrderType),
		string(o.Status), o.Version, items, pricing, address,
		o.PickupLocation.Lat, o.PickupLocation.Lng, o.SpecialInstructions,
		payment, timing, history, o.CreatedAt, o.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && strings.Contains(pgErr.ConstraintName, "order_number") {
		return ErrDuplicateNumber
	}
	return err
}

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *PgStore) List(ctx context.Context, f ListFilter) ([]*Order, int, error) {
	where, args := listWhere(f)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, f.Offset)
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM orders WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, orderColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	orders, err := collectOrders(rows)
	return orders, total, err
}

func listWhere(f ListFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", string(f.CustomerID))
	}
	if f.VendorID != "" {
		add("vendor_id = $%d", string(f.VendorID))
	}
	if f.PartnerID != "" {
		add("delivery_partner_id = $%d", string(f.PartnerID))
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(f.Statuses))
	}
	if !f.CreatedAfter.IsZero() {
		add("created_at >= $%d", f.CreatedAfter)
	}
	if !f.DeliveredAfter.IsZero() {
		add("(timing->>'deliveredAt')::timestamptz >= $%d", f.DeliveredAfter)
	}
	if len(clauses) == 0 {
		return "TRUE", nil
	}
	return strings.Join(clauses, " AND "), args
}

func (s *PgStore) UpdateStatus(ctx context.Context, next *Order, from Status, version int) (bool, error) {
	payment, err := json.Marshal(next.Payment)
	if err != nil {
		return false, err
	}
	timing, err := json.Marshal(next.Timing)
	if err != nil {
		return false, err
	}
	cancellation, err := marshalOptional(next.Cancellation)
	if err != nil {
		return false, err
	}
	history, err := json.Marshal(next.StatusHistory)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    version = version + 1,
		    delivery_partner_id = $2,
		    payment = $3,
		    timing = $4,
		    cancellation = $5,
		    status_history = $6,
		    updated_at = $7
		WHERE id = $8 AND status = $9 AND version = $10`,
		string(next.Status),
		toStringPtr(next.DeliveryPartnerID),
		payment, timing, cancellation, history,
		next.UpdatedAt,
		string(next.ID), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) AssignPartner(ctx context.Context, id, partnerID types.ID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET delivery_partner_id = $1,
		    timing = jsonb_set(timing, '{assignedAt}', to_jsonb($2::timestamptz)),
		    version = version + 1,
		    updated_at = $2
		WHERE id = $3 AND status = ANY($4) AND order_type = 'delivery' AND delivery_partner_id IS NULL`,
		string(partnerID), at, string(id), statusStrings(awaitingPartner),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) AttachRating(ctx context.Context, id types.ID, r Rating) (bool, error) {
	rating, err := json.Marshal(r)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET rating = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND status = 'delivered' AND rating IS NULL`,
		rating, r.RatedAt, string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) UpdatePayment(ctx context.Context, id types.ID, from PaymentStatus, p Payment) (bool, error) {
	payment, err := json.Marshal(p)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET payment = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND payment->>'status' = $3`,
		payment, string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) FindStale(ctx context.Context, statuses []Status, createdBefore time.Time, limit int) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = ANY($1) AND created_at < $2
		ORDER BY created_at
		LIMIT $3`,
		statusStrings(statuses), createdBefore, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *PgStore) FindUnassignedReady(ctx context.Context, limit int) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = ANY($1) AND order_type = 'delivery' AND delivery_partner_id IS NULL
		ORDER BY created_at
		LIMIT $2`, statusStrings(awaitingPartner), limit,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// FindByGatewayOrder is served by orders_gateway_order_idx.
func (s *PgStore) FindByGatewayOrder(ctx context.Context, gatewayOrderID string) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment->>'gatewayOrderId' = $1`, gatewayOrderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func collectOrders(rows pgx.Rows) ([]*Order, error) {
	defer rows.Close()
	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var partnerID *string
	var items, pricing, address, payment, timing, rating, cancellation, history []byte
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.VendorID, &partnerID, &o.OrderType,
		&o.Status, &o.Version, &items, &pricing, &address, &o.PickupLocation.Lat, &o.PickupLocation.Lng,
		&o.SpecialInstructions, &payment, &timing, &rating, &cancellation, &history,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if partnerID != nil {
		p := types.ID(*partnerID)
		o.DeliveryPartnerID = &p
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(pricing, &o.Pricing); err != nil {
		return nil, fmt.Errorf("decode pricing: %w", err)
	}
	if err := json.Unmarshal(payment, &o.Payment); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}
	if err := json.Unmarshal(timing, &o.Timing); err != nil {
		return nil, fmt.Errorf("decode timing: %w", err)
	}
	if err := json.Unmarshal(history, &o.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if len(address) > 0 {
		o.DeliveryAddress = &Address{}
		if err := json.Unmarshal(address, o.DeliveryAddress); err != nil {
			return nil, fmt.Errorf("decode address: %w", err)
		}
	}
	if len(rating) > 0 {
		o.Rating = &Rating{}
		if err := json.Unmarshal(rating, o.Rating); err != nil {
			return nil, fmt.Errorf("decode rating: %w", err)
		}
	}
	if len(cancellation) > 0 {
		o.Cancellation = &Cancellation{}
		if err := json.Unmarshal(cancellation, o.Cancellation); err != nil {
			return nil, fmt.Errorf("decode cancellation: %w", err)
		}
	}
	return &o, nil
}

// marshalOptional encodes v, mapping a nil pointer to SQL NULL.
func marshalOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func statusStrings(list []Status) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}

func toStringPtr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	v := string(*id)
	return &v
}
