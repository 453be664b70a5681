package panel

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	internalsettings "github.com/streamvault/streamvault/internal/settings"
	"gorm.io/gorm"
)

// Config carries the panel connection settings for one operation.
// It is loaded fresh per job execution so settings changes take effect on
// the next job without a restart.
type Config struct {
	BaseURL       string // Panel API base URL.
	APIKey        string // Panel API key.
	StreamBaseURL string // Base URL used to build playlist URLs.
}

// MissingConfigError reports which panel settings are absent.
type MissingConfigError struct {
	Missing []string // Setting keys that are unset.
}

// Error implements the error interface.
func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("panel: missing settings: %s", strings.Join(e.Missing, ", "))
}

// LoadConfig reads the current panel settings from the database.
// It returns a *MissingConfigError when required settings are absent.
func LoadConfig(ctx context.Context, conn *gorm.DB) (Config, error) {
	if conn == nil {
		return Config{}, fmt.Errorf("panel: nil connection")
	}

	baseURL, errBase := internalsettings.Get(ctx, conn, internalsettings.PanelBaseURLKey)
	if errBase != nil {
		return Config{}, errBase
	}
	apiKey, errKey := internalsettings.Get(ctx, conn, internalsettings.PanelAPIKeyKey)
	if errKey != nil {
		return Config{}, errKey
	}
	streamBase, errStream := internalsettings.Get(ctx, conn, internalsettings.StreamBaseURLKey)
	if errStream != nil {
		return Config{}, errStream
	}

	var missing []string
	if strings.TrimSpace(baseURL) == "" {
		missing = append(missing, internalsettings.PanelBaseURLKey)
	}
	if strings.TrimSpace(apiKey) == "" {
		missing = append(missing, internalsettings.PanelAPIKeyKey)
	}
	if len(missing) > 0 {
		return Config{}, &MissingConfigError{Missing: missing}
	}

	cfg := Config{
		BaseURL:       strings.TrimSpace(baseURL),
		APIKey:        strings.TrimSpace(apiKey),
		StreamBaseURL: strings.TrimSpace(streamBase),
	}
	if cfg.StreamBaseURL == "" {
		cfg.StreamBaseURL = originOf(cfg.BaseURL)
	}
	return cfg, nil
}

// originOf returns the scheme://host portion of a URL, or the input when it
// cannot be parsed.
func originOf(raw string) string {
	parsed, errParse := url.Parse(strings.TrimSpace(raw))
	if errParse != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimSuffix(strings.TrimSpace(raw), "/")
	}
	return parsed.Scheme + "://" + parsed.Host
}
