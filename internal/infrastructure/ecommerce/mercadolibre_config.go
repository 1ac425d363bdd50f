package ecommerce

import (
	"errors"
	"strings"
)

const (
	// MercadoLibreAPIURL is the production API endpoint
	MercadoLibreAPIURL = "https://api.mercadolibre.com"
	// MercadoLibreTokenURL is the OAuth token endpoint
	MercadoLibreTokenURL = "https://api.mercadolibre.com/oauth/token"
	// MercadoLibreDefaultPageSize is the largest page the search endpoints accept
	MercadoLibreDefaultPageSize = 50
)

// Errors for MercadoLibre configuration
var (
	ErrMercadoLibreConfigMissingClientID     = errors.New("mercadolibre: client id is required")
	ErrMercadoLibreConfigMissingClientSecret = errors.New("mercadolibre: client secret is required")
)

// MercadoLibreConfig holds the application registration and API settings for MercadoLibre
type MercadoLibreConfig struct {
	// ClientID and ClientSecret identify the registered application
	ClientID     string
	ClientSecret string
	// RedirectURI must match the one registered for the application
	RedirectURI string
	// APIBaseURL is the REST API base URL
	APIBaseURL string
	// TokenURL is the OAuth token endpoint
	TokenURL string
	// PageSize is the search page size (max 50)
	PageSize int
}

// NewMercadoLibreConfig creates a configuration with production defaults
func NewMercadoLibreConfig(clientID, clientSecret, redirectURI string) *MercadoLibreConfig {
	return &MercadoLibreConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		APIBaseURL:   MercadoLibreAPIURL,
		TokenURL:     MercadoLibreTokenURL,
		PageSize:     MercadoLibreDefaultPageSize,
	}
}

// Validate validates the configuration and fills defaults
func (c *MercadoLibreConfig) Validate() error {
	if c.ClientID == "" {
		return ErrMercadoLibreConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrMercadoLibreConfigMissingClientSecret
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		c.APIBaseURL = MercadoLibreAPIURL
	}
	if strings.TrimSpace(c.TokenURL) == "" {
		c.TokenURL = MercadoLibreTokenURL
	}
	if c.PageSize <= 0 || c.PageSize > MercadoLibreDefaultPageSize {
		c.PageSize = MercadoLibreDefaultPageSize
	}
	return nil
}
