package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/parsedom/internal/cache"
	"github.com/hyperifyio/parsedom/internal/fetch"
	"github.com/hyperifyio/parsedom/internal/obfuscate"
	"github.com/hyperifyio/parsedom/internal/parsedom"
)

// ErrNoResults is returned when every source was processed but no step
// produced a value. The CLI maps it to exit code 2.
var ErrNoResults = errors.New("no results")

// pageGetter is the part of fetch.Client the app needs.
type pageGetter interface {
	Do(ctx context.Context, r fetch.Request) (fetch.Response, error)
}

type App struct {
	cfg       Config
	fetcher   pageGetter
	extractor *parsedom.Extractor

	stdin  io.Reader
	stdout io.Writer
}

// source is one loaded document before extraction.
type source struct {
	name string
	body []byte
	doc  parsedom.Document
}

func New(_ context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	client := &fetch.Client{
		HTTPClient:          newHTTPClient(cfg.MaxConcurrent),
		UserAgent:           cfg.UserAgent,
		MaxAttempts:         cfg.MaxAttempts,
		PerRequestTimeout:   cfg.Timeout,
		RedirectMaxHops:     cfg.RedirectMaxHops,
		MaxConcurrent:       cfg.MaxConcurrent,
		AllowedContentTypes: cfg.AllowedContentTypes,
		BypassCache:         cfg.BypassCache,
		CacheOnly:           cfg.CacheOnly,
	}
	if cfg.CacheDir != "" {
		// Apply cache invalidation controls; errors only cost a cold cache
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		if n, err := cache.PurgeHTTPCacheByAge(cfg.CacheDir, cfg.CacheMaxAge); err == nil && n > 0 {
			log.Debug().Int("removed", n).Msg("purged expired cache entries")
		}
		if n, err := cache.EnforceHTTPCacheLimits(cfg.CacheDir, cfg.CacheMaxBytes, cfg.CacheMaxEntries); err == nil && n > 0 {
			log.Debug().Int("removed", n).Msg("evicted cache entries over limit")
		}
		client.Cache = &cache.HTTPCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
	}
	return &App{
		cfg:       cfg,
		fetcher:   client,
		extractor: &parsedom.Extractor{MatchTimeout: cfg.MatchTimeout},
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}, nil
}

// Close releases resources held by the app.
func (a *App) Close() {}

// Run loads every source, runs the extraction steps over it and writes the
// results in the configured format.
func (a *App) Run(ctx context.Context) error {
	sources, err := a.loadSources(ctx)
	if err != nil {
		return err
	}
	results := make([]Result, 0, len(sources))
	total := 0
	for _, src := range sources {
		values, err := runSteps(a.extractor, src.doc, a.cfg.Steps)
		if err != nil {
			return fmt.Errorf("%s: %w", src.name, err)
		}
		values = a.postProcess(src.name, values)
		log.Debug().Str("source", src.name).Int("values", len(values)).Msg("extracted")
		total += len(values)
		results = append(results, newResult(src, values))
	}
	if err := a.writeOutput(results); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if total == 0 {
		return ErrNoResults
	}
	return nil
}

// loadSources reads input files first, then fetches URLs concurrently. The
// order of the returned slice follows the configuration.
func (a *App) loadSources(ctx context.Context) ([]source, error) {
	var out []source
	for _, p := range a.cfg.InputPaths {
		src, err := a.readInput(p)
		if err != nil {
			if a.cfg.KeepGoing {
				log.Warn().Err(err).Str("input", p).Msg("read failed; skipping source")
				continue
			}
			return nil, err
		}
		out = append(out, src)
	}

	fetched := make([]*source, len(a.cfg.URLs))
	errs := make([]error, len(a.cfg.URLs))
	var wg sync.WaitGroup
	for i, u := range a.cfg.URLs {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			src, err := a.fetchURL(ctx, u)
			if err != nil {
				errs[i] = err
				return
			}
			fetched[i] = &src
		}(i, u)
	}
	wg.Wait()

	for i, u := range a.cfg.URLs {
		if err := errs[i]; err != nil {
			if a.cfg.KeepGoing {
				log.Warn().Err(err).Str("url", u).Msg("fetch failed; skipping source")
				continue
			}
			return nil, fmt.Errorf("fetch %s: %w", u, err)
		}
		out = append(out, *fetched[i])
	}
	return out, nil
}

func (a *App) readInput(path string) (source, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(a.stdin)
		path = "stdin"
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return source{}, fmt.Errorf("read %s: %w", path, err)
	}
	return source{name: path, body: b, doc: parsedom.FromBytes(b, "")}, nil
}

func (a *App) fetchURL(ctx context.Context, u string) (source, error) {
	resp, err := a.fetcher.Do(ctx, fetch.Request{
		URL:         u,
		Params:      a.cfg.Params,
		Data:        a.cfg.Data,
		Headers:     a.cfg.Headers,
		Cookies:     a.cfg.Cookies,
		NoRedirects: a.cfg.NoRedirects,
	})
	if err != nil {
		return source{}, err
	}
	log.Debug().Str("url", u).Int("status", resp.StatusCode).Bool("cached", resp.FromCache).Int("bytes", len(resp.Body)).Msg("fetched")
	return source{name: u, body: resp.Body, doc: parsedom.FromBytes(resp.Body, resp.ContentType)}, nil
}

// postProcess applies the optional value transforms in a fixed order:
// entity decoding, tag stripping, then revealing wrapped URLs.
func (a *App) postProcess(name string, values []string) []string {
	if !a.cfg.Decode && !a.cfg.Strip && !a.cfg.Reveal {
		return values
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if a.cfg.Decode {
			v = parsedom.DecodeEntities(v)
		}
		if a.cfg.Strip {
			v = strings.TrimSpace(parsedom.StripTags(v))
		}
		if a.cfg.Reveal {
			revealed, err := obfuscate.Reveal(v)
			if err != nil {
				log.Warn().Err(err).Str("source", name).Msg("reveal failed; keeping value")
			} else {
				v = revealed
			}
		}
		out = append(out, v)
	}
	return out
}
