package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/codebox/pkg/models"
)

type otpRow struct {
	UserID      int64     `db:"user_id"`
	AccountID   int64     `db:"account_id"`
	Secret      string    `db:"secret"`
	Issuer      string    `db:"issuer"`
	Type        string    `db:"type"`
	Algorithm   string    `db:"algorithm"`
	Digits      int       `db:"digits"`
	Period      int       `db:"period"`
	TimeOffset  int       `db:"time_offset"`
	BackupCodes string    `db:"backup_codes"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// GetAccountOtp returns the OTP config of an account. The secret is returned
// as stored (encrypted). ErrNotFound when the account has no OTP configured.
func (db *DB) GetAccountOtp(ctx context.Context, userID, accountID int64) (*models.OtpConfig, error) {
	var row otpRow
	query := `SELECT * FROM account_otp WHERE user_id = ? AND account_id = ?`
	err := db.GetContext(ctx, &row, query, userID, accountID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && row.Secret == "") {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account otp: %w", err)
	}

	cfg := &models.OtpConfig{
		Secret:     row.Secret,
		Issuer:     row.Issuer,
		Type:       models.OtpType(row.Type),
		Algorithm:  row.Algorithm,
		Digits:     row.Digits,
		Period:     row.Period,
		TimeOffset: row.TimeOffset,
	}
	// Malformed backup codes are dropped rather than failing the read
	_ = json.Unmarshal([]byte(row.BackupCodes), &cfg.BackupCodes)

	return cfg, nil
}

// SaveAccountOtp creates or replaces the OTP config of an account
func (db *DB) SaveAccountOtp(ctx context.Context, userID, accountID int64, cfg *models.OtpConfig) error {
	backup, err := json.Marshal(cfg.BackupCodes)
	if err != nil {
		return fmt.Errorf("failed to encode backup codes: %w", err)
	}
	if cfg.BackupCodes == nil {
		backup = []byte("[]")
	}

	query := `
		INSERT INTO account_otp (user_id, account_id, secret, issuer, type, algorithm, digits, period, time_offset, backup_codes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, account_id) DO UPDATE SET
			secret = excluded.secret,
			issuer = excluded.issuer,
			type = excluded.type,
			algorithm = excluded.algorithm,
			digits = excluded.digits,
			period = excluded.period,
			time_offset = excluded.time_offset,
			backup_codes = excluded.backup_codes,
			updated_at = excluded.updated_at
	`
	_, err = db.ExecContext(ctx, query,
		userID,
		accountID,
		cfg.Secret,
		cfg.Issuer,
		cfg.Type,
		cfg.Algorithm,
		cfg.Digits,
		cfg.Period,
		cfg.TimeOffset,
		string(backup),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save account otp: %w", err)
	}
	return nil
}

// DeleteAccountOtp removes the OTP config of an account
func (db *DB) DeleteAccountOtp(ctx context.Context, userID, accountID int64) error {
	query := `DELETE FROM account_otp WHERE user_id = ? AND account_id = ?`
	_, err := db.ExecContext(ctx, query, userID, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account otp: %w", err)
	}
	return nil
}
