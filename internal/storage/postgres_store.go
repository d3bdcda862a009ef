package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/example/carpool-matching/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Close() error { return p.db.Close() }

const tripColumns = `id, driver_id, driver_name, driver_rating, driver_preferences,
	from_lat, from_lng, from_address, to_lat, to_lng, to_address, stops,
	price_per_seat, departure_time, available_seats, vehicle_type, is_verified`

func (p *PostgresStore) CreateTrip(ctx context.Context, t *models.CandidateTrip) error {
	prefs, err := json.Marshal(t.DriverPreferences)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	stops, err := json.Marshal(t.Stops)
	if err != nil {
		return fmt.Errorf("encode stops: %w", err)
	}
	res, err := p.db.ExecContext(ctx, `INSERT INTO trips(`+tripColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO NOTHING`,
		t.TripID, t.DriverID, t.DriverName, t.DriverRating, prefs,
		t.From.Latitude, t.From.Longitude, t.From.Address,
		t.To.Latitude, t.To.Longitude, t.To.Address, stops,
		t.PricePerSeat, t.DepartureTime, t.AvailableSeats, t.VehicleType, t.IsVerified)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTripExists
	}
	return nil
}

func (p *PostgresStore) GetTrip(ctx context.Context, id string) (models.CandidateTrip, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id=$1`, id)
	t, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CandidateTrip{}, ErrNotFound
	}
	return t, err
}

func (p *PostgresStore) SearchTrips(ctx context.Context, f models.TripFilter) ([]models.CandidateTrip, error) {
	if f.IDs != nil && len(f.IDs) == 0 {
		return []models.CandidateTrip{}, nil
	}
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.IDs != nil {
		add("id = ANY($%d)", pq.Array(f.IDs))
	}
	if !f.DepartureAfter.IsZero() {
		add("departure_time >= $%d", f.DepartureAfter)
	}
	if !f.DepartureBefore.IsZero() {
		add("departure_time <= $%d", f.DepartureBefore)
	}
	add("available_seats >= $%d", f.MinSeats)

	q := `SELECT ` + tripColumns + ` FROM trips WHERE ` + strings.Join(where, " AND ") + ` ORDER BY departure_time, id`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.CandidateTrip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if f.IDs != nil {
		out = orderByIDs(out, f.IDs)
	}
	return out, nil
}

func (p *PostgresStore) ReserveSeats(ctx context.Context, tripID string, seats int) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE trips SET available_seats = available_seats - $2 WHERE id=$1 AND available_seats >= $2`,
		tripID, seats)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := p.GetTrip(ctx, tripID); err != nil {
			return err
		}
		return ErrInsufficientSeats
	}
	return nil
}

func (p *PostgresStore) ReleaseSeats(ctx context.Context, tripID string, seats int) error {
	res, err := p.db.ExecContext(ctx, `UPDATE trips SET available_seats = available_seats + $2 WHERE id=$1`, tripID, seats)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (p *PostgresStore) SaveBooking(ctx context.Context, b *models.Booking) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO bookings(id, trip_id, rider_id, driver_id, seats, amount_minor, currency, payment_intent_id, status, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		b.ID, b.TripID, b.RiderID, b.DriverID, b.Seats, b.AmountMinor, b.Currency, b.PaymentIntentID, string(b.Status), b.CreatedAt, b.UpdatedAt)
	return err
}

func (p *PostgresStore) GetBooking(ctx context.Context, id string) (models.Booking, error) {
	var (
		b      models.Booking
		status string
	)
	err := p.db.QueryRowContext(ctx, `SELECT id, trip_id, rider_id, driver_id, seats, amount_minor, currency, payment_intent_id, status, created_at, updated_at
		FROM bookings WHERE id=$1`, id).
		Scan(&b.ID, &b.TripID, &b.RiderID, &b.DriverID, &b.Seats, &b.AmountMinor, &b.Currency, &b.PaymentIntentID, &status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Booking{}, ErrNotFound
	}
	b.Status = models.BookingStatus(status)
	return b, err
}

func (p *PostgresStore) TransitionBooking(ctx context.Context, id string, from, to models.BookingStatus, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `UPDATE bookings SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4`,
		string(to), at, id, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := p.GetBooking(ctx, id); err != nil {
		return err
	}
	return ErrStatusConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(r rowScanner) (models.CandidateTrip, error) {
	var (
		t            models.CandidateTrip
		prefs, stops []byte
	)
	err := r.Scan(&t.TripID, &t.DriverID, &t.DriverName, &t.DriverRating, &prefs,
		&t.From.Latitude, &t.From.Longitude, &t.From.Address,
		&t.To.Latitude, &t.To.Longitude, &t.To.Address, &stops,
		&t.PricePerSeat, &t.DepartureTime, &t.AvailableSeats, &t.VehicleType, &t.IsVerified)
	if err != nil {
		return models.CandidateTrip{}, err
	}
	if err := json.Unmarshal(prefs, &t.DriverPreferences); err != nil {
		return models.CandidateTrip{}, fmt.Errorf("decode preferences for %s: %w", t.TripID, err)
	}
	if len(stops) > 0 {
		if err := json.Unmarshal(stops, &t.Stops); err != nil {
			return models.CandidateTrip{}, fmt.Errorf("decode stops for %s: %w", t.TripID, err)
		}
	}
	return t, nil
}
