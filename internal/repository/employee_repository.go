package repository

import (
	"context"
	"fmt"

	"github.com/apptly/apptly/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

type EmployeeRepository struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewEmployeeRepository(pool *pgxpool.Pool, logger *logrus.Logger) *EmployeeRepository {
	return &EmployeeRepository{
		pool:   pool,
		logger: logger,
	}
}

// List returns the full employee roster.
func (r *EmployeeRepository) List(ctx context.Context) ([]models.Employee, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT emp_id::text, emp_firstname, emp_lastname, emp_role, emp_phone, emp_user
		FROM employee`)
	if err != nil {
		r.logger.WithError(err).Error("Failed to query employees")
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []models.Employee
	for rows.Next() {
		var emp models.Employee
		if err := rows.Scan(
			&emp.EmpID, &emp.EmpFirstname, &emp.EmpLastname,
			&emp.EmpRole, &emp.EmpPhone, &emp.EmpUser,
		); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read employees: %w", err)
	}
	return employees, nil
}
