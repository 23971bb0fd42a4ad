package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mixelka/codebox/pkg/models"
)

// ActiveCodesLimit caps the number of codes returned by ListActiveCodes
const ActiveCodesLimit = 10

type codeRow struct {
	ID             int64  `db:"id"`
	UserID         int64  `db:"user_id"`
	MailboxAddress string `db:"mailbox_address"`
	Service        string `db:"service"`
	Code           string `db:"code"`
	AccountName    string `db:"account_name"`
	IsRead         bool   `db:"is_read"`
	CreatedAt      int64  `db:"created_at"`
	ExpiresAt      int64  `db:"expires_at"`
}

func (r codeRow) model() *models.VerificationCode {
	return &models.VerificationCode{
		ID:             r.ID,
		UserID:         r.UserID,
		MailboxAddress: r.MailboxAddress,
		Service:        r.Service,
		Code:           r.Code,
		AccountName:    r.AccountName,
		IsRead:         r.IsRead,
		CreatedAt:      time.UnixMilli(r.CreatedAt).UTC(),
		ExpiresAt:      time.UnixMilli(r.ExpiresAt).UTC(),
	}
}

// RecordCode inserts code unless the same (mailbox, code) pair was recorded
// for the user within window before code.CreatedAt. Returns ErrAlreadyExists
// for a deduplicated code. CreatedAt and ExpiresAt must be set by the caller.
func (db *DB) RecordCode(ctx context.Context, code *models.VerificationCode, window time.Duration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := code.CreatedAt.UTC()

	var existing int
	err = tx.GetContext(ctx, &existing, `
		SELECT COUNT(*) FROM verification_codes
		WHERE user_id = ? AND mailbox_address = ? AND code = ? AND created_at > ?
	`, code.UserID, code.MailboxAddress, code.Code, createdAt.Add(-window).UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to check duplicate code: %w", err)
	}
	if existing > 0 {
		return ErrAlreadyExists
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO verification_codes (user_id, mailbox_address, service, code, account_name, is_read, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, false, ?, ?)
	`,
		code.UserID,
		code.MailboxAddress,
		code.Service,
		code.Code,
		code.AccountName,
		createdAt.UnixMilli(),
		code.ExpiresAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create code: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit code: %w", err)
	}

	code.ID = id
	code.IsRead = false
	code.CreatedAt = createdAt
	code.ExpiresAt = code.ExpiresAt.UTC()
	return nil
}

// ListActiveCodes returns unexpired codes of a user, newest first
func (db *DB) ListActiveCodes(ctx context.Context, userID int64, now time.Time) ([]*models.VerificationCode, error) {
	var rows []codeRow
	query := `
		SELECT * FROM verification_codes
		WHERE user_id = ? AND expires_at > ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	err := db.SelectContext(ctx, &rows, query, userID, now.UTC().UnixMilli(), ActiveCodesLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}

	codes := make([]*models.VerificationCode, 0, len(rows))
	for _, row := range rows {
		codes = append(codes, row.model())
	}
	return codes, nil
}

// MarkCodeAsRead marks a code as read
func (db *DB) MarkCodeAsRead(ctx context.Context, userID, id int64) error {
	query := `UPDATE verification_codes SET is_read = true WHERE id = ? AND user_id = ?`
	result, err := db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark code as read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneCodes deletes codes created before cutoff
func (db *DB) PruneCodes(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM verification_codes WHERE created_at < ?`, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune codes: %w", err)
	}
	return result.RowsAffected()
}
