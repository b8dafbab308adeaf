package app

import (
	"net/url"
	"time"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Sources. InputPaths may contain "-" for stdin.
	URLs       []string
	InputPaths []string

	// Output
	OutputPath string
	Format     string

	// Extraction
	Steps        []Step
	Decode       bool
	Strip        bool
	Reveal       bool
	MatchTimeout time.Duration

	// Request
	Params              url.Values
	Data                url.Values
	Headers             map[string]string
	Cookies             map[string]string
	UserAgent           string
	NoRedirects         bool
	AllowedContentTypes []string
	MaxAttempts         int
	Timeout             time.Duration
	MaxConcurrent       int
	RedirectMaxHops     int

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheMaxEntries  int
	CacheMaxBytes    int64
	CacheClear       bool
	CacheStrictPerms bool
	CacheOnly        bool
	BypassCache      bool

	// Behavior
	KeepGoing bool
	Verbose   bool
}

// ApplyDefaults fills settings still unset after flags, env and file config
// have been applied.
func ApplyDefaults(cfg *Config) {
	if cfg.Format == "" {
		cfg.Format = formatDefault
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = maxAttemptsDefault
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = timeoutDefault
	}
}
