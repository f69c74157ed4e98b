package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds environment-driven settings shared by the gateway components.
type Config struct {
	// Account is the owner of the release repository.
	Account string
	// Repository is the name of the release repository.
	Repository string
	// Token is an optional bearer credential for private repositories
	// or higher API rate limits.
	Token string
	// BaseURL is the externally visible base URL used when building
	// proxied download links. When empty, links are derived per request.
	BaseURL string
	// Port is the HTTP listener port.
	Port int
	// PathPrefix is stripped from inbound request paths before routing.
	PathPrefix string
	// Prerelease makes the resolver consider prereleases when picking
	// the latest release.
	Prerelease bool
	// NoProxy disables the download proxy in favor of direct CDN links.
	NoProxy bool
	// Timeout bounds upstream metadata calls. Streaming transfers are
	// bounded by request cancellation instead.
	Timeout time.Duration
	// LogLevel is the minimum level for log output.
	LogLevel string
}

const (
	// DefaultPort is the HTTP listener port used when PORT is not set.
	DefaultPort = 4000

	// DefaultTimeout is the default bound for upstream metadata calls.
	DefaultTimeout = 30 * time.Second
)

var (
	// errInvalidPort is returned when the configured port is out of range.
	errInvalidPort = errors.New("port must be between 1 and 65535")
	// errMalformedRepo is returned when REPO is set but not in owner/name form.
	errMalformedRepo = errors.New("REPO must be in the form owner/repository")
)

// Load resolves configuration from the environment and validates it.
// A missing repository identity is not an error here: the router serves a
// diagnostic page in that case so the operator sees what to set.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	// Aliases mirror the historical deployment environments: REPO is the
	// combined owner/name form, GITHUB_TOKEN and VERCEL_URL are fallbacks.
	_ = v.BindEnv("account", "ACCOUNT")
	_ = v.BindEnv("repository", "REPOSITORY")
	_ = v.BindEnv("repo", "REPO")
	_ = v.BindEnv("token", "TOKEN", "GITHUB_TOKEN")
	_ = v.BindEnv("url", "URL", "VERCEL_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("path_prefix", "PATH_PREFIX")
	_ = v.BindEnv("pre", "PRE")
	_ = v.BindEnv("noproxy", "NOPROXY")
	_ = v.BindEnv("timeout", "TIMEOUT")
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	v.SetDefault("port", DefaultPort)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("log_level", "info")

	cfg := &Config{
		Account:    strings.TrimSpace(v.GetString("account")),
		Repository: strings.TrimSpace(v.GetString("repository")),
		Token:      strings.TrimSpace(v.GetString("token")),
		BaseURL:    NormalizeBaseURL(v.GetString("url")),
		Port:       v.GetInt("port"),
		PathPrefix: strings.TrimSpace(v.GetString("path_prefix")),
		Prerelease: v.GetBool("pre"),
		NoProxy:    v.GetBool("noproxy"),
		Timeout:    v.GetDuration("timeout"),
		LogLevel:   strings.TrimSpace(v.GetString("log_level")),
	}

	// The combined form fills in whichever half is missing.
	if cfg.Account == "" || cfg.Repository == "" {
		if repo := strings.TrimSpace(v.GetString("repo")); repo != "" {
			account, repository, err := splitRepo(repo)
			if err != nil {
				return nil, err
			}

			cfg.Account = account
			cfg.Repository = repository
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the provided settings for formatting and fills defaults.
func Validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return errInvalidPort
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.BaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
	}

	return nil
}

// HasRepo reports whether a repository identity is configured.
func (c *Config) HasRepo() bool {
	return c.Account != "" && c.Repository != ""
}

// Slug returns the repository identity in owner/name form.
func (c *Config) Slug() string {
	return c.Account + "/" + c.Repository
}

// NormalizeBaseURL prefixes bare hosts with https so deployment platforms
// that expose only the hostname still produce valid links.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.HasPrefix(strings.ToLower(raw), "http://") ||
		strings.HasPrefix(strings.ToLower(raw), "https://") {
		return strings.TrimSuffix(raw, "/")
	}

	return "https://" + strings.TrimSuffix(raw, "/")
}

// splitRepo parses the combined owner/name form.
func splitRepo(repo string) (string, string, error) {
	account, repository, found := strings.Cut(repo, "/")
	if !found || account == "" || repository == "" {
		return "", "", errMalformedRepo
	}

	return account, repository, nil
}
