// Package directory resolves recipient ids to contact information.
package directory

import (
	"context"
	"database/sql"

	apperrors "github.com/getailigned/notification-service/internal/common/errors"
)

// Contact is the deliverable identity of a recipient.
type Contact struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Directory looks up recipients in an external user directory.
type Directory interface {
	GetRecipientInfo(ctx context.Context, recipientID, tenantID string) (*Contact, error)
}

// PostgresDirectory resolves recipients from the shared users table.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) GetRecipientInfo(ctx context.Context, recipientID, tenantID string) (*Contact, error) {
	const query = `SELECT email, display_name FROM users WHERE id = $1 AND tenant_id = $2`

	var contact Contact
	err := d.db.QueryRowContext(ctx, query, recipientID, tenantID).Scan(&contact.Email, &contact.Name)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewRecipientNotFoundError(recipientID, nil)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("getRecipientInfo", err)
	}
	return &contact, nil
}
