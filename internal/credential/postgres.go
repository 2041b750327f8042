package credential

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using PostgreSQL. Update locks the
// credential row FOR UPDATE so two concurrent wrong-PIN submissions cannot
// both observe the same attempt count.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed credential repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const credentialColumns = `user_id, pin_hash, attempt_count, locked_until, signature_asset,
	stamp_x, stamp_y, stamp_width, stamp_height, two_factor_method,
	totp_secret_enc, backup_codes_enc, totp_last_step, enabled, updated_at`

// Save upserts the credential row.
func (r *PostgresRepository) Save(ctx context.Context, cred Credential) error {
	_, err := r.db.Exec(ctx, `INSERT INTO signing_credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_id) DO UPDATE SET
			pin_hash = EXCLUDED.pin_hash,
			attempt_count = EXCLUDED.attempt_count,
			locked_until = EXCLUDED.locked_until,
			signature_asset = EXCLUDED.signature_asset,
			stamp_x = EXCLUDED.stamp_x,
			stamp_y = EXCLUDED.stamp_y,
			stamp_width = EXCLUDED.stamp_width,
			stamp_height = EXCLUDED.stamp_height,
			two_factor_method = EXCLUDED.two_factor_method,
			totp_secret_enc = EXCLUDED.totp_secret_enc,
			backup_codes_enc = EXCLUDED.backup_codes_enc,
			totp_last_step = EXCLUDED.totp_last_step,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at`,
		cred.UserID, cred.PINHash, cred.AttemptCount, nullableTime(cred.LockedUntil),
		cred.SignatureAsset, cred.StampX, cred.StampY, cred.StampWidth, cred.StampHeight,
		cred.TwoFactorMethod, cred.TOTPSecretEnc, cred.BackupCodesEnc, cred.TOTPLastStep,
		cred.Enabled, time.Now().UTC())
	return err
}

// Find fetches the credential for a signatory.
func (r *PostgresRepository) Find(ctx context.Context, userID string) (Credential, error) {
	row := r.db.QueryRow(ctx, `SELECT `+credentialColumns+` FROM signing_credentials WHERE user_id = $1`, userID)
	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	return cred, err
}

// Update applies fn inside a transaction holding the row lock.
func (r *PostgresRepository) Update(ctx context.Context, userID string, fn func(*Credential) error) (Credential, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Credential{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT `+credentialColumns+` FROM signing_credentials WHERE user_id = $1 FOR UPDATE`, userID)
	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, err
	}

	if err := fn(&cred); err != nil {
		return Credential{}, err
	}
	cred.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx, `UPDATE signing_credentials SET
			pin_hash = $2, attempt_count = $3, locked_until = $4, signature_asset = $5,
			stamp_x = $6, stamp_y = $7, stamp_width = $8, stamp_height = $9,
			two_factor_method = $10, totp_secret_enc = $11, backup_codes_enc = $12,
			totp_last_step = $13, enabled = $14, updated_at = $15
		WHERE user_id = $1`,
		cred.UserID, cred.PINHash, cred.AttemptCount, nullableTime(cred.LockedUntil),
		cred.SignatureAsset, cred.StampX, cred.StampY, cred.StampWidth, cred.StampHeight,
		cred.TwoFactorMethod, cred.TOTPSecretEnc, cred.BackupCodesEnc, cred.TOTPLastStep,
		cred.Enabled, cred.UpdatedAt)
	if err != nil {
		return Credential{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Credential{}, err
	}
	return cred, nil
}

func scanCredential(row pgx.Row) (Credential, error) {
	var (
		cred        Credential
		lockedUntil *time.Time
	)
	err := row.Scan(&cred.UserID, &cred.PINHash, &cred.AttemptCount, &lockedUntil,
		&cred.SignatureAsset, &cred.StampX, &cred.StampY, &cred.StampWidth, &cred.StampHeight,
		&cred.TwoFactorMethod, &cred.TOTPSecretEnc, &cred.BackupCodesEnc, &cred.TOTPLastStep,
		&cred.Enabled, &cred.UpdatedAt)
	if err != nil {
		return Credential{}, err
	}
	if lockedUntil != nil {
		cred.LockedUntil = lockedUntil.UTC()
	}
	return cred, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
