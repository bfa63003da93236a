package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/venuely/apiserver/types"
)

// VerificationRepository stores one live passcode per email address.
type VerificationRepository struct {
	db *sql.DB
}

func NewVerificationRepository(db *sql.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Upsert replaces any previous code for the email and resets the attempt counter.
func (r *VerificationRepository) Upsert(ctx context.Context, code types.VerificationCode) error {
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO verification_codes (email, code_hash, expires_at, attempts, created_at)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (email) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			attempts = 0,
			created_at = EXCLUDED.created_at`
	_, err := r.db.ExecContext(ctx, query, code.Email, code.CodeHash, code.ExpiresAt, code.CreatedAt)
	return err
}

func (r *VerificationRepository) Get(ctx context.Context, email string) (types.VerificationCode, error) {
	const query = `
		SELECT email, code_hash, expires_at, attempts, created_at
		FROM verification_codes
		WHERE email = $1`
	var code types.VerificationCode
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&code.Email,
		&code.CodeHash,
		&code.ExpiresAt,
		&code.Attempts,
		&code.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.VerificationCode{}, ErrNotFound
		}
		return types.VerificationCode{}, err
	}
	return code, nil
}

// ClaimAttempt reserves one guess against the code before it is compared.
// The counter only moves while it is below limit, so concurrent callers can
// never claim more than limit guesses between them.
func (r *VerificationRepository) ClaimAttempt(ctx context.Context, email string, limit int) (int, error) {
	const query = `
		UPDATE verification_codes
		SET attempts = attempts + 1
		WHERE email = $1 AND attempts < $2
		RETURNING attempts`
	var attempts int
	err := r.db.QueryRowContext(ctx, query, email, limit).Scan(&attempts)
	if err == nil {
		return attempts, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var exists bool
	const existsQuery = `SELECT EXISTS (SELECT 1 FROM verification_codes WHERE email = $1)`
	if err := r.db.QueryRowContext(ctx, existsQuery, email).Scan(&exists); err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrAttemptsExhausted
	}
	return 0, ErrNotFound
}

func (r *VerificationRepository) Delete(ctx context.Context, email string) error {
	const query = `DELETE FROM verification_codes WHERE email = $1`
	_, err := r.db.ExecContext(ctx, query, email)
	return err
}
