package app

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Result is the extraction output for one source.
type Result struct {
	Source string   `json:"source" yaml:"source"`
	SHA256 string   `json:"sha256" yaml:"sha256"`
	Bytes  int      `json:"bytes" yaml:"bytes"`
	Values []string `json:"values" yaml:"values"`
}

// manifestMeta captures high-level run details that aid reproducibility.
type manifestMeta struct {
	Version     string    `json:"version" yaml:"version"`
	Steps       []string  `json:"steps" yaml:"steps"`
	SourceCount int       `json:"source_count" yaml:"source_count"`
	ValueCount  int       `json:"value_count" yaml:"value_count"`
	HTTPCache   bool      `json:"http_cache" yaml:"http_cache"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
}

// manifest is the envelope written by the json and yaml formats.
type manifest struct {
	Meta    manifestMeta `json:"meta" yaml:"meta"`
	Results []Result     `json:"results" yaml:"results"`
}

// computeSHA256Hex returns a lowercase hex-encoded SHA-256 of b.
func computeSHA256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func newResult(src source, values []string) Result {
	if values == nil {
		values = []string{}
	}
	return Result{
		Source: src.name,
		SHA256: computeSHA256Hex(src.body),
		Bytes:  len(src.body),
		Values: values,
	}
}

func (a *App) buildManifest(results []Result, now time.Time) manifest {
	steps := make([]string, 0, len(a.cfg.Steps))
	for _, st := range a.cfg.Steps {
		steps = append(steps, st.String())
	}
	total := 0
	for _, r := range results {
		total += len(r.Values)
	}
	return manifest{
		Meta: manifestMeta{
			Version:     VersionString(),
			Steps:       steps,
			SourceCount: len(results),
			ValueCount:  total,
			HTTPCache:   a.cfg.CacheDir != "",
			GeneratedAt: now.UTC(),
		},
		Results: results,
	}
}
