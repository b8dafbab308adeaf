package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/parsedom/internal/app"
	"github.com/hyperifyio/parsedom/internal/parsedom"
)

// listFlag collects every occurrence of a repeatable flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }
func (l *listFlag) Set(s string) error {
	*l = append(*l, s)
	return nil
}

// pairFlag collects repeatable name=value flags in the order given.
type pairFlag [][2]string

func (p *pairFlag) String() string {
	parts := make([]string, 0, len(*p))
	for _, kv := range *p {
		parts = append(parts, kv[0]+"="+kv[1])
	}
	return strings.Join(parts, ",")
}

func (p *pairFlag) Set(s string) error {
	eq := strings.IndexByte(s, '=')
	if eq <= 0 {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	*p = append(*p, [2]string{s[:eq], s[eq+1:]})
	return nil
}

func (p pairFlag) values() url.Values {
	if len(p) == 0 {
		return nil
	}
	v := make(url.Values, len(p))
	for _, kv := range p {
		v.Add(kv[0], kv[1])
	}
	return v
}

func (p pairFlag) asMap() map[string]string {
	if len(p) == 0 {
		return nil
	}
	m := make(map[string]string, len(p))
	for _, kv := range p {
		m[kv[0]] = kv[1]
	}
	return m
}

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		urls, inputs, stepSpecs, envFiles listFlag
		attrs, params, data, headers     pairFlag
		cookies                          pairFlag

		outputPath   string
		format       string
		tag          string
		ret          string
		includeTags  bool
		decode       bool
		strip        bool
		reveal       bool
		matchTimeout time.Duration
		configPath   string

		userAgent    string
		noRedirects  bool
		contentTypes string
		maxAttempts  int
		timeout      time.Duration
		concurrency  int
		maxRedirects int

		cacheDir        string
		cacheMaxAge     time.Duration
		cacheMaxEntries int
		cacheMaxBytes   int64
		cacheClear      bool
		cacheStrict     bool
		cacheOnly       bool
		cacheBypass     bool

		keepGoing   bool
		verbose     bool
		showVersion bool
	)

	flag.Var(&urls, "url", "URL to fetch and parse (repeatable)")
	flag.Var(&inputs, "in", "HTML file to parse, '-' for stdin (repeatable)")
	flag.StringVar(&outputPath, "output", "", "Write results to this path instead of stdout")
	flag.StringVar(&format, "format", "", "Output format: text, json, yaml or pdf (default text)")
	flag.StringVar(&tag, "tag", "", "Tag name of the first extraction step")
	flag.Var(&attrs, "attr", "Attribute constraint name=pattern for -tag (repeatable, all must match)")
	flag.StringVar(&ret, "ret", "", "Return this attribute's value instead of the element content")
	flag.BoolVar(&includeTags, "include-tags", false, "Wrap returned content in its opening and closing tags")
	flag.Var(&stepSpecs, "step", "Extra step 'tag [name=pattern ...] [@attr|+tags]' run on the previous results (repeatable)")
	flag.BoolVar(&decode, "decode", false, "Decode HTML entities in results")
	flag.BoolVar(&strip, "strip", false, "Strip markup from results")
	flag.BoolVar(&reveal, "reveal", false, "Reveal obfuscated redirect URLs in results")
	flag.DurationVar(&matchTimeout, "match.timeout", 0, "Per-match timeout for attribute patterns; 0 disables")
	flag.StringVar(&configPath, "config", os.Getenv("PARSEDOM_CONFIG"), "YAML or JSON config file")
	flag.Var(&envFiles, "env", "dotenv file to load before reading the environment (repeatable)")

	flag.StringVar(&userAgent, "ua", "", "User-Agent header; empty picks a random browser string")
	flag.Var(&params, "param", "Query parameter name=value (repeatable)")
	flag.Var(&data, "data", "Form field name=value; any field turns the request into a POST (repeatable)")
	flag.Var(&headers, "header", "Request header Name=value (repeatable)")
	flag.Var(&cookies, "cookie", "Cookie name=value (repeatable)")
	flag.BoolVar(&noRedirects, "no-redirects", false, "Do not follow redirects")
	flag.StringVar(&contentTypes, "content-types", "", "Comma-separated accepted Content-Type prefixes, '*' for any")
	flag.IntVar(&maxAttempts, "max.attempts", 0, "Attempts per request including the first (default 2)")
	flag.DurationVar(&timeout, "timeout", 0, "Per-request timeout (default 20s)")
	flag.IntVar(&concurrency, "concurrency", 0, "Maximum concurrent requests; 0 is unlimited")
	flag.IntVar(&maxRedirects, "max.redirects", 0, "Maximum redirect hops (default 5)")

	flag.StringVar(&cacheDir, "cache.dir", "", "HTTP cache directory; empty disables caching")
	flag.DurationVar(&cacheMaxAge, "cache.maxAge", 0, "Purge cache entries older than this; 0 disables")
	flag.IntVar(&cacheMaxEntries, "cache.maxEntries", 0, "Keep at most this many cache entries; 0 disables")
	flag.Int64Var(&cacheMaxBytes, "cache.maxBytes", 0, "Keep cached bodies under this many bytes; 0 disables")
	flag.BoolVar(&cacheClear, "cache.clear", false, "Clear cache directory before run")
	flag.BoolVar(&cacheStrict, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	flag.BoolVar(&cacheOnly, "cache.only", false, "Serve pages from cache only; fail on a miss")
	flag.BoolVar(&cacheBypass, "cache.bypass", false, "Always fetch fresh but still refresh the cache")

	flag.BoolVar(&keepGoing, "keep-going", false, "Skip sources that fail to load instead of aborting")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(app.VersionString())
		return
	}

	// Remaining arguments are sources: URLs when they look like one, files otherwise
	for _, arg := range flag.Args() {
		if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
			urls = append(urls, arg)
		} else {
			inputs = append(inputs, arg)
		}
	}

	if err := app.LoadEnvFiles(envFiles...); err != nil {
		log.Error().Err(err).Msg("load env files")
		os.Exit(1)
	}

	cfg := app.Config{
		URLs:                urls,
		InputPaths:          inputs,
		OutputPath:          outputPath,
		Format:              format,
		Decode:              decode,
		Strip:               strip,
		Reveal:              reveal,
		MatchTimeout:        matchTimeout,
		Params:              params.values(),
		Data:                data.values(),
		Headers:             headers.asMap(),
		Cookies:             cookies.asMap(),
		UserAgent:           userAgent,
		NoRedirects:         noRedirects,
		AllowedContentTypes: splitComma(contentTypes),
		MaxAttempts:         maxAttempts,
		Timeout:             timeout,
		MaxConcurrent:       concurrency,
		RedirectMaxHops:     maxRedirects,
		CacheDir:            cacheDir,
		CacheMaxAge:         cacheMaxAge,
		CacheMaxEntries:     cacheMaxEntries,
		CacheMaxBytes:       cacheMaxBytes,
		CacheClear:          cacheClear,
		CacheStrictPerms:    cacheStrict,
		CacheOnly:           cacheOnly,
		BypassCache:         cacheBypass,
		KeepGoing:           keepGoing,
		Verbose:             verbose,
	}

	steps, err := buildSteps(tag, attrs, ret, includeTags, stepSpecs)
	if err != nil {
		log.Error().Err(err).Msg("invalid step")
		os.Exit(1)
	}
	cfg.Steps = steps

	// Precedence: flags, then environment, then config file, then defaults
	app.ApplyEnvToConfig(&cfg)
	if strings.TrimSpace(configPath) != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Error().Err(err).Str("path", configPath).Msg("load config")
			os.Exit(1)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyDefaults(&cfg)

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		if errors.Is(err, app.ErrNoResults) {
			log.Warn().Msg("no matching elements")
		} else {
			log.Error().Err(err).Msg("run failed")
		}
	}
	os.Exit(exitCode(err))
}

// exitCode maps run errors to the process exit status: 0 on success, 2 when
// nothing matched, 1 for everything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, app.ErrNoResults):
		return 2
	default:
		return 1
	}
}

// buildSteps turns the single-step flags and any -step specs into the step
// list. The -tag step, when present, runs first.
func buildSteps(tag string, attrs pairFlag, ret string, includeTags bool, specs []string) ([]app.Step, error) {
	var steps []app.Step
	if strings.TrimSpace(tag) != "" {
		st := app.Step{Tag: strings.TrimSpace(tag), Attr: ret, IncludeTags: includeTags}
		for _, kv := range attrs {
			st.Attrs = append(st.Attrs, parsedom.Attr(kv[0], parsedom.Pattern(kv[1])))
		}
		steps = append(steps, st)
	} else if len(attrs) > 0 || ret != "" || includeTags {
		return nil, errors.New("-attr, -ret and -include-tags need -tag")
	}
	for _, s := range specs {
		st, err := app.ParseStep(s)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, nil
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func run(ctx context.Context, cfg app.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}
