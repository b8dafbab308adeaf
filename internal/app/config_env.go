package app

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
    if cfg == nil { return }

    if cfg.UserAgent == "" {
        cfg.UserAgent = os.Getenv("PARSEDOM_USER_AGENT")
    }
    if cfg.CacheDir == "" {
        cfg.CacheDir = os.Getenv("CACHE_DIR")
    }
    if len(cfg.AllowedContentTypes) == 0 {
        cfg.AllowedContentTypes = splitList(os.Getenv("PARSEDOM_CONTENT_TYPES"))
    }
    if cfg.MaxConcurrent == 0 {
        if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("PARSEDOM_CONCURRENCY"))); err == nil && n > 0 {
            cfg.MaxConcurrent = n
        }
    }

    // Optional durations
    setDuration := func(dst *time.Duration, envKey string) {
        if *dst != 0 { return }
        if s := os.Getenv(envKey); s != "" {
            if d, err := time.ParseDuration(s); err == nil {
                *dst = d
            }
        }
    }
    setDuration(&cfg.Timeout, "PARSEDOM_TIMEOUT")
    setDuration(&cfg.MatchTimeout, "PARSEDOM_MATCH_TIMEOUT")
    setDuration(&cfg.CacheMaxAge, "CACHE_MAX_AGE")

    // Booleans
    setBool := func(dst *bool, envKey string) {
        if *dst { return }
        if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
            if s == "1" || s == "true" || s == "yes" || s == "on" {
                *dst = true
            }
        }
    }
    setBool(&cfg.Verbose, "VERBOSE")
    setBool(&cfg.KeepGoing, "PARSEDOM_KEEP_GOING")
    setBool(&cfg.CacheClear, "CACHE_CLEAR")
    setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
    setBool(&cfg.CacheOnly, "HTTP_CACHE_ONLY")
}

// splitList splits a comma separated list, dropping blanks.
func splitList(s string) []string {
    if strings.TrimSpace(s) == "" { return nil }
    parts := strings.Split(s, ",")
    list := make([]string, 0, len(parts))
    for _, p := range parts {
        if v := strings.TrimSpace(p); v != "" { list = append(list, v) }
    }
    return list
}
