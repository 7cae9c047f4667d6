// README: Worker store backed by PostgreSQL.
package worker

import (
	"context"
	"errors"

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

func (s *PgStore) Put(ctx context.Context, w *Worker) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO workers (
			id, name, phone, specializations, availability, active, approved,
			service_radius_km, rating, total_orders, completed_orders,
			lat, lng, address, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			specializations = EXCLUDED.specializations,
			availability = EXCLUDED.availability,
			active = EXCLUDED.active,
			approved = EXCLUDED.approved,
			service_radius_km = EXCLUDED.service_radius_km,
			rating = EXCLUDED.rating,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			address = EXCLUDED.address,
			updated_at = NOW()`,
		string(w.ID), w.Name, w.Phone, w.Specializations,
		string(w.Availability), w.Active, w.Approved,
		w.ServiceRadiusKm, w.Rating, w.TotalOrders, w.CompletedOrders,
		w.Location.Lat, w.Location.Lng, w.Address,
	)
	return err
}

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Worker, error) {
	row := s.db.QueryRow(ctx, selectWorker+` WHERE id = $1`, string(id))
	w, err := scanWorker(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

func (s *PgStore) GetMany(ctx context.Context, ids []types.ID) ([]*Worker, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, selectWorker+` WHERE id = ANY($1)`, raw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[types.ID]*Worker, len(ids))
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		byID[w.ID] = w
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Preserve the caller's ordering (the geo index returns ids nearest first).
	out := make([]*Worker, 0, len(byID))
	for _, id := range ids {
		if w, ok := byID[id]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *PgStore) UpdateLocation(ctx context.Context, id types.ID, p types.Point, address string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE workers
		SET lat = $1,
		    lng = $2,
		    address = CASE WHEN $3 <> '' THEN $3 ELSE address END,
		    updated_at = NOW()
		WHERE id = $4`,
		p.Lat, p.Lng, address, string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) UpdateAvailability(ctx context.Context, id types.ID, a Availability) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE workers SET availability = $1, updated_at = NOW() WHERE id = $2`,
		string(a), string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) IncrementCompleted(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE workers
		SET total_orders = total_orders + 1,
		    completed_orders = completed_orders + 1,
		    updated_at = NOW()
		WHERE id = $1`, string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const selectWorker = `
	SELECT id, name, phone, specializations, availability, active, approved,
	       service_radius_km, rating, total_orders, completed_orders,
	       lat, lng, address, created_at, updated_at
	FROM workers`

func scanWorker(row pgx.Row) (*Worker, error) {
	var w Worker
	err := row.Scan(
		&w.ID, &w.Name, &w.Phone, &w.Specializations,
		&w.Availability, &w.Active, &w.Approved,
		&w.ServiceRadiusKm, &w.Rating, &w.TotalOrders, &w.CompletedOrders,
		&w.Location.Lat, &w.Location.Lng, &w.Address,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
