package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/apptly/apptly/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by mutations that matched no appointment row.
var ErrNotFound = errors.New("no matching appointment")

type AppointmentRepository struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewAppointmentRepository(pool *pgxpool.Pool, logger *logrus.Logger) *AppointmentRepository {
	return &AppointmentRepository{
		pool:   pool,
		logger: logger,
	}
}

// LastClosed returns the client's most recent completed appointment before
// today, or nil, nil when there is none.
func (r *AppointmentRepository) LastClosed(ctx context.Context, clientID string) (*models.Appointment, error) {
	var apt models.Appointment
	err := r.pool.QueryRow(ctx, `
		SELECT apt_date::text, apt_client::text, apt_emp_executive::text, apt_status
		FROM appointment
		WHERE apt_client = $1::bigint AND apt_date < CURRENT_DATE AND apt_status = 'closed'
		ORDER BY apt_date DESC
		LIMIT 1`, clientID).Scan(
		&apt.AptDate, &apt.AptClient, &apt.AptEmpExecutive, &apt.AptStatus,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithError(err).Error("Failed to query last appointment")
		return nil, fmt.Errorf("failed to query last appointment: %w", err)
	}
	return &apt, nil
}

// Next returns the client's earliest appointment from today onward, joined
// with the executive employee and the client's address, or nil, nil.
func (r *AppointmentRepository) Next(ctx context.Context, clientID string) (*models.AppointmentDetail, error) {
	var apt models.AppointmentDetail
	err := r.pool.QueryRow(ctx, `
		SELECT a.apt_date::text, a.apt_client::text, a.apt_emp_executive::text, a.apt_status,
		       e.emp_firstname, e.emp_lastname,
		       c.client_city, c.client_street, c.client_street_number::text
		FROM appointment a
		LEFT JOIN employee e ON a.apt_emp_executive = e.emp_id
		JOIN client c ON a.apt_client = c.client_id
		WHERE a.apt_client = $1::bigint AND a.apt_date >= CURRENT_DATE
		ORDER BY a.apt_date
		LIMIT 1`, clientID).Scan(
		&apt.AptDate, &apt.AptClient, &apt.AptEmpExecutive, &apt.AptStatus,
		&apt.EmpFirstname, &apt.EmpLastname,
		&apt.ClientCity, &apt.ClientStreet, &apt.ClientStreetNumber,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithError(err).Error("Failed to query next appointment")
		return nil, fmt.Errorf("failed to query next appointment: %w", err)
	}
	return &apt, nil
}

// ByMonth returns every appointment in the given month.
func (r *AppointmentRepository) ByMonth(ctx context.Context, month, year int) ([]models.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT apt_date::text, apt_client::text, apt_emp_executive::text, apt_status
		FROM appointment
		WHERE EXTRACT(MONTH FROM apt_date) = $1 AND EXTRACT(YEAR FROM apt_date) = $2`,
		month, year)
	if err != nil {
		r.logger.WithError(err).Error("Failed to query appointments by month")
		return nil, fmt.Errorf("failed to query appointments by month: %w", err)
	}
	defer rows.Close()

	var appointments []models.Appointment
	for rows.Next() {
		var apt models.Appointment
		if err := rows.Scan(&apt.AptDate, &apt.AptClient, &apt.AptEmpExecutive, &apt.AptStatus); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appointments = append(appointments, apt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read appointments: %w", err)
	}
	return appointments, nil
}

// OpenInDate returns every open appointment on the given date, joined with
// employee and client details for the staff day view.
func (r *AppointmentRepository) OpenInDate(ctx context.Context, date string) ([]models.AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.apt_date::text, a.apt_client::text, a.apt_emp_executive::text, a.apt_status,
		       e.emp_firstname, e.emp_lastname,
		       c.client_name, c.client_city, c.client_street, c.client_street_number::text
		FROM appointment a
		LEFT JOIN employee e ON a.apt_emp_executive = e.emp_id
		LEFT JOIN client c ON a.apt_client = c.client_id
		WHERE a.apt_date = $1::date AND a.apt_status = 'open'`, date)
	if err != nil {
		r.logger.WithError(err).Error("Failed to query appointments in date")
		return nil, fmt.Errorf("failed to query appointments in date: %w", err)
	}
	defer rows.Close()

	var appointments []models.AppointmentDetail
	for rows.Next() {
		var apt models.AppointmentDetail
		if err := rows.Scan(
			&apt.AptDate, &apt.AptClient, &apt.AptEmpExecutive, &apt.AptStatus,
			&apt.EmpFirstname, &apt.EmpLastname,
			&apt.ClientName, &apt.ClientCity, &apt.ClientStreet, &apt.ClientStreetNumber,
		); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appointments = append(appointments, apt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read appointments: %w", err)
	}
	return appointments, nil
}

// UnassignedInDate returns open appointments on the given date that have no
// executive employee yet, with the representative's phone for callbacks.
func (r *AppointmentRepository) UnassignedInDate(ctx context.Context, date string) ([]models.UnassignedAppointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.apt_date::text, a.apt_client::text,
		       c.client_name, c.client_city, c.client_street, c.client_street_number::text,
		       cr.rep_phone
		FROM appointment a
		LEFT JOIN client c ON a.apt_client = c.client_id
		LEFT JOIN client_representative cr ON c.client_rep = cr.rep_id
		WHERE a.apt_date = $1::date AND a.apt_status = 'open' AND a.apt_emp_executive IS NULL`, date)
	if err != nil {
		r.logger.WithError(err).Error("Failed to query unassigned appointments")
		return nil, fmt.Errorf("failed to query unassigned appointments: %w", err)
	}
	defer rows.Close()

	var appointments []models.UnassignedAppointment
	for rows.Next() {
		var apt models.UnassignedAppointment
		if err := rows.Scan(
			&apt.AptDate, &apt.AptClient,
			&apt.ClientName, &apt.ClientCity, &apt.ClientStreet, &apt.ClientStreetNumber,
			&apt.RepPhone,
		); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appointments = append(appointments, apt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read appointments: %w", err)
	}
	return appointments, nil
}

// Create inserts a new open appointment for the client on the given date.
func (r *AppointmentRepository) Create(ctx context.Context, date, clientID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO appointment (apt_date, apt_client, apt_emp_executive, apt_status)
		VALUES ($1::date, $2::bigint, NULL, 'open')`, date, clientID)
	if err != nil {
		r.logger.WithError(err).Error("Failed to insert appointment")
		return fmt.Errorf("failed to insert appointment: %w", err)
	}

	return tx.Commit(ctx)
}

// Reschedule moves a client's appointment from one date to another.
func (r *AppointmentRepository) Reschedule(ctx context.Context, clientID, date, newDate string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE appointment
		SET apt_date = $1::date
		WHERE apt_date = $2::date AND apt_client = $3::bigint`, newDate, date, clientID)
	if err != nil {
		r.logger.WithError(err).Error("Failed to update appointment")
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	return tx.Commit(ctx)
}

// AssignExecutives applies a batch of executive assignments in a single
// transaction. If any assignment matches no appointment the whole batch is
// rolled back and the error wraps ErrNotFound.
func (r *AppointmentRepository) AssignExecutives(ctx context.Context, assignments []models.Assignment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range assignments {
		tag, err := tx.Exec(ctx, `
			UPDATE appointment
			SET apt_emp_executive = $1::bigint
			WHERE apt_date = $2::date AND apt_client = $3::bigint`,
			a.AptEmpExecutive, a.AptDate, a.AptClient)
		if err != nil {
			r.logger.WithError(err).Error("Failed to assign executive")
			return fmt.Errorf("failed to assign executive: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w for date: %s, client_id: %s", ErrNotFound, a.AptDate, a.AptClient)
		}
	}

	return tx.Commit(ctx)
}
