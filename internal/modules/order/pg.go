// README: Order store backed by PostgreSQL; CAS via status+version guards.
package order

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caredispatch/internal/types"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	snap, err := marshalSnapshot(o.AssignedWorker)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, items, lat, lng, address,
			total, currency, payment_method, payment_ref,
			status, status_version, assigned_worker,
			acceptance_deadline, accepted_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16
		)`,
		string(o.ID), string(o.CustomerID), items,
		o.Location.Position.Lat, o.Location.Position.Lng, o.Location.Address,
		o.Total.Amount, o.Total.Currency, o.PaymentMethod, o.PaymentRef,
		string(o.Status), o.StatusVersion, snap,
		o.AcceptanceDeadline, o.AcceptedAt, o.CreatedAt,
	)
	if err != nil {
		return err
	}
	for _, off := range o.Offers {
		if err := insertOffer(ctx, tx, o.ID, off); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, selectOrder+` WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadOffers(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PgStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1, status_version = status_version + 1
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) Assign(ctx context.Context, id types.ID, from Status, version int, snap WorkerSnapshot, acceptedAt time.Time) (bool, error) {
	raw, err := marshalSnapshot(&snap)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    assigned_worker = $2,
		    accepted_at = $3
		WHERE id = $4 AND status = $5 AND status_version = $6`,
		string(StatusAssigned), raw, acceptedAt, string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) AddOffers(ctx context.Context, id types.ID, version int, offers []Offer, deadline time.Time) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    acceptance_deadline = $2
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(StatusNotified), deadline, string(id), string(StatusSearching), version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	for _, off := range offers {
		if err := insertOffer(ctx, tx, id, off); err != nil {
			return false, err
		}
	}
	return true, tx.Commit(ctx)
}

func (s *PgStore) AcceptOffer(ctx context.Context, id, workerID types.ID, version int, snap WorkerSnapshot, acceptedAt time.Time) (bool, error) {
	raw, err := marshalSnapshot(&snap)
	if err != nil {
		return false, err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE order_offers
		SET response = $1
		WHERE order_id = $2 AND worker_id = $3 AND response = $4`,
		string(OfferAccepted), string(id), string(workerID), string(OfferPending),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	tag, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    assigned_worker = $2,
		    accepted_at = $3
		WHERE id = $4 AND status = $5 AND status_version = $6`,
		string(StatusAssigned), raw, acceptedAt,
		string(id), string(StatusNotified), version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		// The status guard lost the race; the offer update rolls back too.
		return false, nil
	}
	return true, tx.Commit(ctx)
}

func (s *PgStore) DenyOffer(ctx context.Context, id, workerID types.ID) (int, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback(ctx)

	// The status guard keeps a deny after resolution from reporting
	// success; an assigned order takes no further offer flips.
	tag, err := tx.Exec(ctx, `
		UPDATE order_offers
		SET response = $1
		WHERE order_id = $2 AND worker_id = $3 AND response = $4
		  AND EXISTS (SELECT 1 FROM orders WHERE id = $2 AND status = $5)`,
		string(OfferDenied), string(id), string(workerID), string(OfferPending),
		string(StatusNotified),
	)
	if err != nil {
		return 0, false, err
	}
	if tag.RowsAffected() != 1 {
		return 0, false, nil
	}
	var pending int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM order_offers
		WHERE order_id = $1 AND response = $2`,
		string(id), string(OfferPending),
	).Scan(&pending)
	if err != nil {
		return 0, false, err
	}
	return pending, true, tx.Commit(ctx)
}

func (s *PgStore) ListByCustomer(ctx context.Context, customerID types.ID) ([]*Order, error) {
	return s.list(ctx, selectOrder+` WHERE customer_id = $1 ORDER BY created_at DESC`, string(customerID))
}

func (s *PgStore) ListByWorker(ctx context.Context, workerID types.ID) ([]*Order, error) {
	return s.list(ctx, selectOrder+` WHERE assigned_worker->>'worker_id' = $1 ORDER BY created_at DESC`, string(workerID))
}

func (s *PgStore) ActiveByCustomer(ctx context.Context, customerID types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, selectOrder+`
		WHERE customer_id = $1
		  AND status NOT IN ('finished','completed','cancelled','timeout','no_candidates')
		ORDER BY created_at DESC
		LIMIT 1`, string(customerID),
	)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadOffers(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PgStore) ListOpenOffers(ctx context.Context, workerID types.ID, now time.Time) ([]*Order, error) {
	return s.list(ctx, selectOrder+`
		WHERE status = 'notified'
		  AND (acceptance_deadline IS NULL OR acceptance_deadline > $2)
		  AND id IN (
			SELECT order_id FROM order_offers
			WHERE worker_id = $1 AND response = 'pending'
		  )
		ORDER BY created_at DESC`, string(workerID), now)
}

func (s *PgStore) ListExpiredNotified(ctx context.Context, now time.Time, limit int) ([]*Order, error) {
	return s.list(ctx, selectOrder+`
		WHERE status = 'notified' AND acceptance_deadline IS NOT NULL AND acceptance_deadline < $1
		ORDER BY acceptance_deadline
		LIMIT $2`, now, limit)
}

func (s *PgStore) AdminUpdate(ctx context.Context, id types.ID, status *Status, snap *WorkerSnapshot) (*Order, error) {
	var rawStatus *string
	if status != nil {
		v := string(*status)
		rawStatus = &v
	}
	rawSnap, err := marshalSnapshot(snap)
	if err != nil {
		return nil, err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = COALESCE($1, status),
		    status_version = status_version + CASE WHEN $1 IS NULL THEN 0 ELSE 1 END,
		    assigned_worker = COALESCE($2, assigned_worker)
		WHERE id = $3`,
		rawStatus, rawSnap, string(id),
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *PgStore) AppendEvent(ctx context.Context, e *Event) error {
	var actorID *string
	if e.ActorID != nil {
		v := string(*e.ActorID)
		actorID = &v
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_state_events (
			order_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID), string(e.FromStatus), string(e.ToStatus),
		e.ActorType, actorID, e.CreatedAt,
	)
	return err
}

const selectOrder = `
	SELECT id, customer_id, items, lat, lng, address,
	       total, currency, payment_method, payment_ref,
	       status, status_version, assigned_worker,
	       acceptance_deadline, accepted_at, created_at
	FROM orders`

func (s *PgStore) list(ctx context.Context, query string, args ...any) ([]*Order, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadOffers(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PgStore) loadOffers(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[types.ID]*Order, len(orders))
	ids := make([]string, len(orders))
	for i, o := range orders {
		byID[o.ID] = o
		ids[i] = string(o.ID)
	}
	rows, err := s.db.Query(ctx, `
		SELECT order_id, worker_id, distance_km, notified_at, response
		FROM order_offers
		WHERE order_id = ANY($1)
		ORDER BY distance_km`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var off Offer
		if err := rows.Scan(&orderID, &off.WorkerID, &off.DistanceKm, &off.NotifiedAt, &off.Response); err != nil {
			return err
		}
		if o, ok := byID[types.ID(orderID)]; ok {
			o.Offers = append(o.Offers, off)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var items, snap []byte
	err := row.Scan(
		&o.ID, &o.CustomerID, &items,
		&o.Location.Position.Lat, &o.Location.Position.Lng, &o.Location.Address,
		&o.Total.Amount, &o.Total.Currency, &o.PaymentMethod, &o.PaymentRef,
		&o.Status, &o.StatusVersion, &snap,
		&o.AcceptanceDeadline, &o.AcceptedAt, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, err
		}
	}
	if len(snap) > 0 {
		var ws WorkerSnapshot
		if err := json.Unmarshal(snap, &ws); err != nil {
			return nil, err
		}
		o.AssignedWorker = &ws
	}
	return &o, nil
}

func insertOffer(ctx context.Context, tx pgx.Tx, orderID types.ID, off Offer) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_offers (order_id, worker_id, distance_km, notified_at, response)
		VALUES ($1, $2, $3, $4, $5)`,
		string(orderID), string(off.WorkerID), off.DistanceKm, off.NotifiedAt, string(off.Response),
	)
	return err
}

func marshalSnapshot(s *WorkerSnapshot) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}
