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

type ClientRepository struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewClientRepository(pool *pgxpool.Pool, logger *logrus.Logger) *ClientRepository {
	return &ClientRepository{
		pool:   pool,
		logger: logger,
	}
}

// GetClient returns nil, nil when no client exists with the given id.
func (r *ClientRepository) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	var c models.Client
	err := r.pool.QueryRow(ctx, `
		SELECT client_id::text, client_name, client_city, client_street,
		       client_street_number::text, client_rep::text
		FROM client
		WHERE client_id = $1::bigint`, clientID).Scan(
		&c.ClientID, &c.ClientName, &c.ClientCity, &c.ClientStreet,
		&c.ClientStreetNumber, &c.ClientRep,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithError(err).Error("Failed to query client")
		return nil, fmt.Errorf("failed to query client: %w", err)
	}
	return &c, nil
}

// GetRepresentative returns nil, nil when no representative exists with the
// given id.
func (r *ClientRepository) GetRepresentative(ctx context.Context, repID string) (*models.Representative, error) {
	var rep models.Representative
	err := r.pool.QueryRow(ctx, `
		SELECT rep_id::text, rep_firstname, rep_lastname, rep_phone
		FROM client_representative
		WHERE rep_id = $1::bigint`, repID).Scan(
		&rep.RepID, &rep.RepFirstname, &rep.RepLastname, &rep.RepPhone,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithError(err).Error("Failed to query representative")
		return nil, fmt.Errorf("failed to query representative: %w", err)
	}
	return &rep, nil
}

// GetRepName returns just the representative's name, for the greeting shown
// after login.
func (r *ClientRepository) GetRepName(ctx context.Context, repID string) (*models.RepName, error) {
	var name models.RepName
	err := r.pool.QueryRow(ctx, `
		SELECT rep_firstname, rep_lastname
		FROM client_representative
		WHERE rep_id = $1::bigint`, repID).Scan(&name.RepFirstname, &name.RepLastname)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithError(err).Error("Failed to query representative name")
		return nil, fmt.Errorf("failed to query representative name: %w", err)
	}
	return &name, nil
}
