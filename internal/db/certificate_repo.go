package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"certsentry/internal/types"
)

// CertificateRepository provides read access to the certificates table for
// the scheduling core. Create/update/delete live in the external CRUD
// layer; the scheduler only lists and reads.
type CertificateRepository struct {
	db DBTX
}

// NewCertificateRepository creates a CertificateRepository backed by the
// given database connection (pool or transaction).
func NewCertificateRepository(db DBTX) *CertificateRepository {
	return &CertificateRepository{db: db}
}

var _ types.CertificateRepository = (*CertificateRepository)(nil)

// certColumns is the standard column set for certificate queries. Used
// consistently across all query methods to avoid column drift.
const certColumns = `c.id, c.name, c.owner_emails, c.issued_at, c.expires_at,
	c.status, c.alert_model_id, c.channel_ids, c.notes, c.created_at, c.updated_at`

// scanCertificate scans one certificate row in certColumns order.
func scanCertificate(row pgx.Row) (*types.Certificate, error) {
	var cert types.Certificate
	var alertModelID *string
	var notes *string

	err := row.Scan(
		&cert.ID,
		&cert.Name,
		&cert.OwnerEmails,
		&cert.IssuedAt,
		&cert.ExpiresAt,
		&cert.Status,
		&alertModelID,
		&cert.ChannelIDs,
		&notes,
		&cert.CreatedAt,
		&cert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if alertModelID != nil {
		cert.AlertModelID = *alertModelID
	}
	if notes != nil {
		cert.Notes = *notes
	}
	return &cert, nil
}

// ListCertificates returns every non-deleted certificate, ordered by name
// for deterministic scheduling runs.
func (r *CertificateRepository) ListCertificates(ctx context.Context) ([]types.Certificate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+certColumns+`
		 FROM certificates c
		 WHERE c.deleted_at IS NULL
		 ORDER BY c.name, c.id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list certificates", err)
	}
	defer rows.Close()

	var certs []types.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan certificate", err)
		}
		certs = append(certs, *cert)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate certificates", err)
	}
	return certs, nil
}

// GetCertificate retrieves one certificate by ID. Excludes soft-deleted
// rows. Returns ErrCodeNotFoundCertificate when no active row matches.
func (r *CertificateRepository) GetCertificate(ctx context.Context, id string) (*types.Certificate, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+certColumns+`
		 FROM certificates c
		 WHERE c.id = $1 AND c.deleted_at IS NULL`,
		id,
	)

	cert, err := scanCertificate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundCertificate, "certificate not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve certificate", err)
	}
	return cert, nil
}
