package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/codebox/pkg/models"
)

// GetOAuthClient returns the stored OAuth client credentials of a provider
func (db *DB) GetOAuthClient(ctx context.Context, provider models.Provider) (*models.OAuthClient, error) {
	var client models.OAuthClient
	query := `SELECT provider, client_id, client_secret FROM oauth_providers WHERE provider = ?`
	err := db.GetContext(ctx, &client, query, provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth client: %w", err)
	}
	return &client, nil
}

// SaveOAuthClient creates or replaces OAuth client credentials of a provider
func (db *DB) SaveOAuthClient(ctx context.Context, client *models.OAuthClient) error {
	query := `
		INSERT INTO oauth_providers (provider, client_id, client_secret, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			client_id = excluded.client_id,
			client_secret = excluded.client_secret,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query, client.Provider, client.ClientID, client.ClientSecret, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save oauth client: %w", err)
	}
	return nil
}
