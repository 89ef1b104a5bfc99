package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avelychko/bookgo/internal/domain"
	"github.com/avelychko/bookgo/internal/repository"
)

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// FindConfirmed returns the confirmed booking for (userID, eventID), if
// one exists. Inside a transaction the row is locked so a concurrent
// cancel of the same booking serializes behind the caller.
//
// Returns:
//   - *domain.Booking: the confirmed booking when found.
//   - error: repository.ErrNotFound when no confirmed booking exists.
func (r *BookingRepo) FindConfirmed(
	ctx context.Context,
	userID int64,
	eventID string,
) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.FindConfirmed"

	db := r.handle()

	var b domain.Booking
	err := db.QueryRow(ctx,
		`SELECT id, user_id, event_id, event_title, status, booking_date, created_at, updated_at
       	 FROM bookings
      	 WHERE user_id = $1 AND event_id = $2 AND status = 'confirmed'
      	 FOR UPDATE`,
		userID, eventID,
	).Scan(
		&b.ID, &b.UserID, &b.EventID, &b.EventTitle,
		&b.Status, &b.BookingDate, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &b, nil
}

// InsertConfirmed inserts a new confirmed booking row and fills in the
// store-generated fields on b.
//
// Returns:
//   - error: repository.ErrConflict when the partial unique index on
//     (user_id, event_id) WHERE status = 'confirmed' rejects the insert.
func (r *BookingRepo) InsertConfirmed(ctx context.Context, b *domain.Booking) error {
	const op = "postgresrepo.BookingRepo.InsertConfirmed"

	db := r.handle()

	b.Status = domain.BookingConfirmed

	err := db.QueryRow(ctx,
		`INSERT INTO bookings(user_id, event_id, event_title, status)
       	 VALUES ($1, $2, $3, 'confirmed')
      	 RETURNING id, booking_date, created_at, updated_at`,
		b.UserID, b.EventID, b.EventTitle,
	).Scan(&b.ID, &b.BookingDate, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// FindOwned loads the booking with the given ID scoped to its owner.
// Inside a transaction the row is locked for update.
//
// Returns:
//   - error: repository.ErrNotFound when no such booking belongs to userID.
func (r *BookingRepo) FindOwned(
	ctx context.Context,
	bookingID int64,
	userID int64,
) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.FindOwned"

	db := r.handle()

	var b domain.Booking
	err := db.QueryRow(ctx,
		`SELECT id, user_id, event_id, event_title, status, booking_date, created_at, updated_at
       	 FROM bookings
      	 WHERE id = $1 AND user_id = $2
      	 FOR UPDATE`,
		bookingID, userID,
	).Scan(
		&b.ID, &b.UserID, &b.EventID, &b.EventTitle,
		&b.Status, &b.BookingDate, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &b, nil
}

// UpdateStatus transitions the booking to the given status.
//
// Returns:
//   - error: repository.ErrNotFound when the booking does not exist.
func (r *BookingRepo) UpdateStatus(
	ctx context.Context,
	bookingID int64,
	status domain.BookingStatus,
) error {
	const op = "postgresrepo.BookingRepo.UpdateStatus"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1`,
		bookingID, string(status),
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// ListByUser returns all bookings of a user, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.ListByUser"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, user_id, event_id, event_title, status, booking_date, created_at, updated_at
       	 FROM bookings
      	 WHERE user_id = $1
      	 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.EventID, &b.EventTitle,
			&b.Status, &b.BookingDate, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
