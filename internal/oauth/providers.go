package oauth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mixelka/codebox/pkg/models"
)

// Endpoints of an OAuth identity provider
type Endpoints struct {
	AuthURL    string
	TokenURL   string
	ProfileURL string
	Scopes     []string
	// Extra query parameters of the authorization URL
	AuthParams map[string]string
}

// DefaultEndpoints returns the production endpoints of the supported providers
func DefaultEndpoints() map[models.Provider]Endpoints {
	return map[models.Provider]Endpoints{
		models.ProviderGmail: {
			AuthURL:    "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:   "https://oauth2.googleapis.com/token",
			ProfileURL: "https://gmail.googleapis.com/gmail/v1/users/me/profile",
			Scopes:     []string{"https://www.googleapis.com/auth/gmail.readonly"},
			AuthParams: map[string]string{
				"access_type": "offline",
				"prompt":      "consent",
			},
		},
		models.ProviderOutlook: {
			AuthURL:    "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL:   "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			ProfileURL: "https://graph.microsoft.com/v1.0/me",
			Scopes: []string{
				"offline_access",
				"https://graph.microsoft.com/User.Read",
				"https://graph.microsoft.com/Mail.Read",
			},
			AuthParams: map[string]string{
				"response_mode": "query",
			},
		},
	}
}

// profileAddress extracts the mailbox address from a provider profile response
func profileAddress(provider models.Provider, body []byte) (string, error) {
	switch provider {
	case models.ProviderGmail:
		var profile struct {
			EmailAddress string `json:"emailAddress"`
		}
		if err := json.Unmarshal(body, &profile); err != nil {
			return "", fmt.Errorf("failed to parse gmail profile: %w", err)
		}
		if profile.EmailAddress == "" {
			return "", fmt.Errorf("gmail profile has no email address")
		}
		return strings.ToLower(profile.EmailAddress), nil

	case models.ProviderOutlook:
		var profile struct {
			Mail              string `json:"mail"`
			UserPrincipalName string `json:"userPrincipalName"`
		}
		if err := json.Unmarshal(body, &profile); err != nil {
			return "", fmt.Errorf("failed to parse graph profile: %w", err)
		}
		address := profile.Mail
		if address == "" {
			address = profile.UserPrincipalName
		}
		if address == "" {
			return "", fmt.Errorf("graph profile has no mail address")
		}
		return strings.ToLower(address), nil
	}

	return "", ErrUnsupportedProvider
}
