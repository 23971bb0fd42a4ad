package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/codebox/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when trying to insert a duplicate record
var ErrAlreadyExists = errors.New("record already exists")

// SaveMailbox inserts a mailbox authorization or, when the user already
// authorized the address, replaces its provider and credentials.
func (db *DB) SaveMailbox(ctx context.Context, mailbox *models.Mailbox) error {
	query := `
		INSERT INTO mailboxes (user_id, address, provider, status, credentials, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, address) DO UPDATE SET
			provider = excluded.provider,
			status = excluded.status,
			credentials = excluded.credentials,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	if mailbox.Status == "" {
		mailbox.Status = models.MailboxActive
	}

	_, err := db.ExecContext(ctx, query,
		mailbox.UserID,
		mailbox.Address,
		mailbox.Provider,
		mailbox.Status,
		mailbox.Credentials,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save mailbox: %w", err)
	}

	// LastInsertId is unreliable for the upsert branch
	var saved models.Mailbox
	err = db.GetContext(ctx, &saved, `SELECT * FROM mailboxes WHERE user_id = ? AND address = ?`,
		mailbox.UserID, mailbox.Address)
	if err != nil {
		return fmt.Errorf("failed to reload mailbox: %w", err)
	}

	*mailbox = saved
	return nil
}

// GetMailboxByID returns a mailbox of a user by ID
func (db *DB) GetMailboxByID(ctx context.Context, userID, id int64) (*models.Mailbox, error) {
	var mailbox models.Mailbox
	query := `SELECT * FROM mailboxes WHERE id = ? AND user_id = ?`
	err := db.GetContext(ctx, &mailbox, query, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox: %w", err)
	}
	return &mailbox, nil
}

// GetMailboxesByUser returns all mailboxes of a user in creation order
func (db *DB) GetMailboxesByUser(ctx context.Context, userID int64) ([]*models.Mailbox, error) {
	var mailboxes []*models.Mailbox
	query := `SELECT * FROM mailboxes WHERE user_id = ? ORDER BY id ASC`
	err := db.SelectContext(ctx, &mailboxes, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get mailboxes: %w", err)
	}
	return mailboxes, nil
}

// UpdateMailboxCredentials replaces the encrypted credential blob
func (db *DB) UpdateMailboxCredentials(ctx context.Context, id int64, credentials string) error {
	query := `UPDATE mailboxes SET credentials = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, credentials, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update mailbox credentials: %w", err)
	}
	return nil
}

// SetMailboxStatus sets the status of a mailbox
func (db *DB) SetMailboxStatus(ctx context.Context, id int64, status models.MailboxStatus) error {
	query := `UPDATE mailboxes SET status = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set mailbox status: %w", err)
	}
	return nil
}

// DeleteMailbox deletes a mailbox of a user
func (db *DB) DeleteMailbox(ctx context.Context, userID, id int64) error {
	query := `DELETE FROM mailboxes WHERE id = ? AND user_id = ?`
	result, err := db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete mailbox: %w", err)
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
