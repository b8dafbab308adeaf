package app

import (
    "encoding/json"
    "errors"
    "fmt"
    "net/url"
    "os"
    "path/filepath"
    "strings"
    "time"

    yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema.
// Nested sections map naturally to flags/env.
type FileConfig struct {
    URLs   []string `yaml:"urls" json:"urls"`
    Inputs []string `yaml:"inputs" json:"inputs"`
    Output string   `yaml:"output" json:"output"`
    Format string   `yaml:"format" json:"format"`

    Steps []Step `yaml:"steps" json:"steps"`

    Post struct {
        Decode bool `yaml:"decode" json:"decode"`
        Strip  bool `yaml:"strip" json:"strip"`
        Reveal bool `yaml:"reveal" json:"reveal"`
    } `yaml:"post" json:"post"`

    MatchTimeout time.Duration `yaml:"matchTimeout" json:"matchTimeout"`

    Request struct {
        Params       map[string]string `yaml:"params" json:"params"`
        Data         map[string]string `yaml:"data" json:"data"`
        Headers      map[string]string `yaml:"headers" json:"headers"`
        Cookies      map[string]string `yaml:"cookies" json:"cookies"`
        UserAgent    string            `yaml:"userAgent" json:"userAgent"`
        NoRedirects  bool              `yaml:"noRedirects" json:"noRedirects"`
        ContentTypes []string          `yaml:"contentTypes" json:"contentTypes"`
        MaxAttempts  int               `yaml:"maxAttempts" json:"maxAttempts"`
        Timeout      time.Duration     `yaml:"timeout" json:"timeout"`
        Concurrency  int               `yaml:"concurrency" json:"concurrency"`
        MaxRedirects int               `yaml:"maxRedirects" json:"maxRedirects"`
    } `yaml:"request" json:"request"`

    Cache struct {
        Dir         string        `yaml:"dir" json:"dir"`
        MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
        MaxEntries  int           `yaml:"maxEntries" json:"maxEntries"`
        MaxBytes    int64         `yaml:"maxBytes" json:"maxBytes"`
        Clear       bool          `yaml:"clear" json:"clear"`
        StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
        Only        bool          `yaml:"only" json:"only"`
        Bypass      bool          `yaml:"bypass" json:"bypass"`
    } `yaml:"cache" json:"cache"`

    KeepGoing bool `yaml:"keepGoing" json:"keepGoing"`
    Verbose   bool `yaml:"verbose" json:"verbose"`
}

// Defaults applied last by ApplyDefaults. File values replace them when a
// caller pre-filled them.
const (
    formatDefault      = "text"
    maxAttemptsDefault = 2
    timeoutDefault     = 20 * time.Second
)

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
    var fc FileConfig
    b, err := os.ReadFile(path)
    if err != nil {
        return fc, err
    }
    switch ext := filepath.Ext(path); ext {
    case ".yaml", ".yml":
        if err := yaml.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse yaml: %w", err)
        }
    case ".json":
        if err := json.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse json: %w", err)
        }
    default:
        // Try YAML then JSON
        if err := yaml.Unmarshal(b, &fc); err != nil {
            if jerr := json.Unmarshal(b, &fc); jerr != nil {
                return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
            }
        }
    }
    return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields that
// are currently unset/zero in cfg. Flags should already have been parsed; this
// function lets file config supply defaults while preserving explicit flags.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
    if cfg == nil { return }

    if len(cfg.URLs) == 0 && len(fc.URLs) > 0 { cfg.URLs = append([]string{}, fc.URLs...) }
    if len(cfg.InputPaths) == 0 && len(fc.Inputs) > 0 { cfg.InputPaths = append([]string{}, fc.Inputs...) }
    if cfg.OutputPath == "" && fc.Output != "" { cfg.OutputPath = fc.Output }
    if (cfg.Format == "" || cfg.Format == formatDefault) && fc.Format != "" { cfg.Format = fc.Format }

    if len(cfg.Steps) == 0 && len(fc.Steps) > 0 { cfg.Steps = append([]Step{}, fc.Steps...) }
    if !cfg.Decode && fc.Post.Decode { cfg.Decode = true }
    if !cfg.Strip && fc.Post.Strip { cfg.Strip = true }
    if !cfg.Reveal && fc.Post.Reveal { cfg.Reveal = true }
    if cfg.MatchTimeout == 0 && fc.MatchTimeout > 0 { cfg.MatchTimeout = fc.MatchTimeout }

    r := fc.Request
    if len(cfg.Params) == 0 && len(r.Params) > 0 { cfg.Params = toValues(r.Params) }
    if len(cfg.Data) == 0 && len(r.Data) > 0 { cfg.Data = toValues(r.Data) }
    cfg.Headers = mergeMissing(cfg.Headers, r.Headers)
    cfg.Cookies = mergeMissing(cfg.Cookies, r.Cookies)
    if cfg.UserAgent == "" && r.UserAgent != "" { cfg.UserAgent = r.UserAgent }
    if !cfg.NoRedirects && r.NoRedirects { cfg.NoRedirects = true }
    if len(cfg.AllowedContentTypes) == 0 && len(r.ContentTypes) > 0 { cfg.AllowedContentTypes = append([]string{}, r.ContentTypes...) }
    if (cfg.MaxAttempts == 0 || cfg.MaxAttempts == maxAttemptsDefault) && r.MaxAttempts > 0 { cfg.MaxAttempts = r.MaxAttempts }
    if (cfg.Timeout == 0 || cfg.Timeout == timeoutDefault) && r.Timeout > 0 { cfg.Timeout = r.Timeout }
    if cfg.MaxConcurrent == 0 && r.Concurrency > 0 { cfg.MaxConcurrent = r.Concurrency }
    if cfg.RedirectMaxHops == 0 && r.MaxRedirects > 0 { cfg.RedirectMaxHops = r.MaxRedirects }

    c := fc.Cache
    if cfg.CacheDir == "" && c.Dir != "" { cfg.CacheDir = c.Dir }
    if cfg.CacheMaxAge == 0 && c.MaxAge > 0 { cfg.CacheMaxAge = c.MaxAge }
    if cfg.CacheMaxEntries == 0 && c.MaxEntries > 0 { cfg.CacheMaxEntries = c.MaxEntries }
    if cfg.CacheMaxBytes == 0 && c.MaxBytes > 0 { cfg.CacheMaxBytes = c.MaxBytes }
    if !cfg.CacheClear && c.Clear { cfg.CacheClear = true }
    if !cfg.CacheStrictPerms && c.StrictPerms { cfg.CacheStrictPerms = true }
    if !cfg.CacheOnly && c.Only { cfg.CacheOnly = true }
    if !cfg.BypassCache && c.Bypass { cfg.BypassCache = true }

    if !cfg.KeepGoing && fc.KeepGoing { cfg.KeepGoing = true }
    if !cfg.Verbose && fc.Verbose { cfg.Verbose = true }
}

// ValidateConfig performs minimal schema validation for required settings.
func ValidateConfig(cfg Config) error {
    if len(cfg.URLs) == 0 && len(cfg.InputPaths) == 0 {
        return errors.New("config: at least one url or input is required")
    }
    if len(cfg.Steps) == 0 {
        return errors.New("config: at least one step is required (-tag or -step)")
    }
    for i, st := range cfg.Steps {
        if strings.TrimSpace(st.Tag) == "" {
            return fmt.Errorf("config: step %d has no tag", i+1)
        }
    }
    switch cfg.Format {
    case "", "text", "json", "yaml", "pdf":
    default:
        return fmt.Errorf("config: unknown format %q (text, json, yaml, pdf)", cfg.Format)
    }
    if cfg.Format == "pdf" && (cfg.OutputPath == "" || cfg.OutputPath == "-") {
        return errors.New("config: pdf output needs -output path")
    }
    if cfg.MaxAttempts < 0 || cfg.MaxConcurrent < 0 || cfg.CacheMaxEntries < 0 || cfg.CacheMaxBytes < 0 {
        return errors.New("config: negative limits are not allowed")
    }
    if cfg.CacheOnly && cfg.CacheDir == "" && len(cfg.URLs) > 0 {
        return errors.New("config: cache-only mode needs a cache dir")
    }
    return nil
}

func toValues(m map[string]string) url.Values {
    v := make(url.Values, len(m))
    for k, s := range m {
        v.Set(k, s)
    }
    return v
}

// mergeMissing adds entries from src whose keys are not yet in dst.
func mergeMissing(dst, src map[string]string) map[string]string {
    if len(src) == 0 { return dst }
    if dst == nil { dst = make(map[string]string, len(src)) }
    for k, v := range src {
        if _, ok := dst[k]; !ok { dst[k] = v }
    }
    return dst
}
