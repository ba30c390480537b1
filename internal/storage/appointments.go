package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateProvider inserts a service provider. Used by seeding.
func (s *Store) CreateProvider(ctx context.Context, p ServiceProvider) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO service_providers (id, name, contact) VALUES (?, ?, ?)`,
		p.ID, p.Name, p.Contact)
	return err
}

// CreateCustomer inserts a customer. Used by seeding.
func (s *Store) CreateCustomer(ctx context.Context, c Customer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (id, name, contact) VALUES (?, ?, ?)`,
		c.ID, c.Name, c.Contact)
	return err
}

// GetCustomer returns the customer with the given ID.
func (s *Store) GetCustomer(ctx context.Context, id string) (Customer, error) {
	var c Customer
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, contact FROM customers WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Contact)
	if err == sql.ErrNoRows {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, err
	}
	return c, nil
}

// ProvisionSlots creates 30-minute slots for a provider starting at
// startDate for the given number of days, 48 slots per day. Existing
// (provider, date, time) rows are left untouched.
func (s *Store) ProvisionSlots(ctx context.Context, providerID string, startDate string, days int) (int, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return 0, fmt.Errorf("parsing start date %q: %w", startDate, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning provision transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO appointments (id, provider_id, date, time_slot, booked)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT (provider_id, date, time_slot) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("preparing slot insert: %w", err)
	}
	defer stmt.Close()

	created := 0
	for day := 0; day < days; day++ {
		date := start.AddDate(0, 0, day).Format("2006-01-02")
		for half := 0; half < 48; half++ {
			slot := fmt.Sprintf("%02d:%02d", half/2, (half%2)*30)
			res, err := stmt.ExecContext(ctx, uuid.New().String(), providerID, date, slot)
			if err != nil {
				return 0, fmt.Errorf("inserting slot %s %s: %w", date, slot, err)
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				created++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing provisioned slots: %w", err)
	}
	return created, nil
}

// ListAvailableSlots returns the distinct unbooked HH:MM slots on a date,
// ordered ascending, across all providers. Which provider owns a slot is
// deliberately not exposed here; only a booking confirmation names one.
func (s *Store) ListAvailableSlots(ctx context.Context, date string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT time_slot FROM appointments
		WHERE date = ? AND booked = 0
		ORDER BY time_slot ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("listing slots for %s: %w", date, err)
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("scanning slot row: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// ClaimSlot atomically books one unbooked slot matching (date, timeSlot)
// for the given customer. The claim is a single conditional UPDATE: under
// concurrent attempts at most one caller wins each slot. Returns
// ErrNoSlots when no slot exists for the pair at all, and ErrSlotTaken
// when slots exist but every one is already booked.
func (s *Store) ClaimSlot(ctx context.Context, date, timeSlot, mode, customerID string) (BookedSlot, error) {
	// RETURNING pins the confirmation to the row this claim flipped; a
	// customer holding another provider's slot at the same time must not
	// change which booking is confirmed.
	var claimedID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE appointments
		SET booked = 1, customer_id = ?, mode = ?
		WHERE id = (
			SELECT id FROM appointments
			WHERE date = ? AND time_slot = ? AND booked = 0
			ORDER BY provider_id ASC
			LIMIT 1
		) AND booked = 0
		RETURNING id`,
		customerID, mode, date, timeSlot).Scan(&claimedID)
	if err == sql.ErrNoRows {
		var total int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM appointments WHERE date = ? AND time_slot = ?`,
			date, timeSlot,
		).Scan(&total); err != nil {
			return BookedSlot{}, fmt.Errorf("checking slot existence: %w", err)
		}
		if total == 0 {
			return BookedSlot{}, ErrNoSlots
		}
		return BookedSlot{}, ErrSlotTaken
	}
	if err != nil {
		return BookedSlot{}, fmt.Errorf("claiming slot: %w", err)
	}

	var booked BookedSlot
	err = s.db.QueryRowContext(ctx, `
		SELECT a.id, p.name, a.date, a.time_slot, a.mode
		FROM appointments a
		JOIN service_providers p ON p.id = a.provider_id
		WHERE a.id = ?`,
		claimedID,
	).Scan(&booked.SlotID, &booked.ProviderName, &booked.Date, &booked.TimeSlot, &booked.Mode)
	if err != nil {
		return BookedSlot{}, fmt.Errorf("loading booked slot: %w", err)
	}
	return booked, nil
}

// GetSlot returns one appointment slot by ID. Used by tests and status checks.
func (s *Store) GetSlot(ctx context.Context, id string) (AppointmentSlot, error) {
	var a AppointmentSlot
	var customerID, mode sql.NullString
	var booked int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, provider_id, customer_id, date, time_slot, booked, mode
		FROM appointments WHERE id = ?`, id,
	).Scan(&a.ID, &a.ProviderID, &customerID, &a.Date, &a.TimeSlot, &booked, &mode)
	if err == sql.ErrNoRows {
		return AppointmentSlot{}, ErrNotFound
	}
	if err != nil {
		return AppointmentSlot{}, err
	}
	a.CustomerID = customerID.String
	a.Mode = mode.String
	a.Booked = booked == 1
	return a, nil
}
