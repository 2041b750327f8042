package certificate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed certificate repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const certColumns = `id, number, rendered_path, subject_name, subject_given_name, subject_birth_date,
	issued_at_epoch_ms, status, signature_kind, generated_at, signed_at, signatory_id`

// Create inserts a new certificate row. The unique index on number is the
// last line of defence for number immutability.
func (r *PostgresRepository) Create(ctx context.Context, cert Certificate) error {
	id, err := uuid.Parse(cert.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO certificates (`+certColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, cert.Number, cert.RenderedPath,
		cert.Payload.SubjectName, cert.Payload.SubjectGivenName, cert.Payload.SubjectBirthDate,
		cert.Payload.IssuedAtEpochMs, cert.Status, cert.SignatureKind,
		cert.GeneratedAt.UTC(), nullableTime(cert.SignedAt), nullableString(cert.SignatoryID))
	return err
}

// FindByID fetches a certificate by its identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Certificate, error) {
	certID, err := uuid.Parse(id)
	if err != nil {
		return Certificate{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+certColumns+` FROM certificates WHERE id = $1`, certID)
	return scanCertificate(row)
}

// FindByNumber fetches a certificate by its printed number.
func (r *PostgresRepository) FindByNumber(ctx context.Context, number string) (Certificate, error) {
	row := r.db.QueryRow(ctx, `SELECT `+certColumns+` FROM certificates WHERE number = $1`, number)
	return scanCertificate(row)
}

// MarkSigned flips the certificate to signed only from the generated state.
func (r *PostgresRepository) MarkSigned(ctx context.Context, id, signatoryID string, signedAt time.Time) (Certificate, error) {
	certID, err := uuid.Parse(id)
	if err != nil {
		return Certificate{}, ErrNotFound
	}

	cmd, err := r.db.Exec(ctx, `UPDATE certificates
		SET status = $2, signature_kind = $3, signed_at = $4, signatory_id = $5
		WHERE id = $1 AND status = $6`,
		certID, StatusSigned, SignatureKindElectronic, signedAt.UTC(), signatoryID, StatusGenerated)
	if err != nil {
		return Certificate{}, err
	}
	if cmd.RowsAffected() == 0 {
		// Either absent or already signed; a lookup disambiguates.
		if _, lookupErr := r.FindByID(ctx, id); errors.Is(lookupErr, ErrNotFound) {
			return Certificate{}, ErrNotFound
		}
		return Certificate{}, ErrAlreadySigned
	}
	return r.FindByID(ctx, id)
}

func scanCertificate(row pgx.Row) (Certificate, error) {
	var (
		cert        Certificate
		id          uuid.UUID
		signedAt    *time.Time
		signatoryID *string
	)
	err := row.Scan(&id, &cert.Number, &cert.RenderedPath,
		&cert.Payload.SubjectName, &cert.Payload.SubjectGivenName, &cert.Payload.SubjectBirthDate,
		&cert.Payload.IssuedAtEpochMs, &cert.Status, &cert.SignatureKind,
		&cert.GeneratedAt, &signedAt, &signatoryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Certificate{}, ErrNotFound
	}
	if err != nil {
		return Certificate{}, err
	}
	cert.ID = id.String()
	cert.Payload.ID = cert.ID
	cert.Payload.Number = cert.Number
	cert.GeneratedAt = cert.GeneratedAt.UTC()
	if signedAt != nil {
		cert.SignedAt = signedAt.UTC()
	}
	if signatoryID != nil {
		cert.SignatoryID = *signatoryID
	}
	return cert, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
