package app

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// writeOutput renders results in the configured format to the output path,
// or to stdout when no path (or "-") is set.
func (a *App) writeOutput(results []Result) error {
	if a.cfg.Format == "pdf" {
		return writeResultsPDF(results, a.cfg.OutputPath)
	}
	w := a.stdout
	if p := a.cfg.OutputPath; p != "" && p != "-" {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := os.Create(p)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	if err := a.render(bw, results); err != nil {
		return err
	}
	return bw.Flush()
}

func (a *App) render(w io.Writer, results []Result) error {
	switch a.cfg.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(a.buildManifest(results, time.Now()))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(a.buildManifest(results, time.Now())); err != nil {
			return err
		}
		return enc.Close()
	default:
		return writeText(w, results)
	}
}

// writeText prints one value per line. With several sources each line is
// prefixed by the source and a tab. Newlines inside values are escaped so a
// line always holds one value.
func writeText(w io.Writer, results []Result) error {
	prefix := len(results) > 1
	for _, r := range results {
		for _, v := range r.Values {
			v = strings.ReplaceAll(v, "\n", `\n`)
			var err error
			if prefix {
				_, err = fmt.Fprintf(w, "%s\t%s\n", r.Source, v)
			} else {
				_, err = fmt.Fprintln(w, v)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}
