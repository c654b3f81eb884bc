// Package main implements the genconfig tool that writes sigdemo.example.toml
// from config.DefaultConfig(), annotated with config.Docs.
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fairyfar/gdb-sigwait/internal/config"
)

// section is one TOML table of the example file; name is "" for root keys.
type section struct {
	name  string
	value any
}

// sections lists the tables in file order.
func sections(cfg *config.Config) []section {
	return []section{
		{"", map[string]int{"version": cfg.Version}},
		{"consumer", cfg.Consumer},
		{"signals", cfg.Signals},
		{"log", cfg.Log},
		{"process", cfg.Process},
	}
}

func main() {
	out, err := render(config.DefaultConfig(), config.Docs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		os.Exit(1)
	}

	// go generate runs from internal/config/; the example lives at the root.
	outPath := "../../sigdemo.example.toml"
	if err := os.WriteFile(outPath, []byte(out), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote sigdemo.example.toml\n")
}

// render encodes cfg one table at a time and interleaves the documentation.
// Documented keys the encoder omitted (empty omitempty fields) are added as
// comments so every option appears in the file.
func render(cfg *config.Config, docs map[string]config.FieldDoc) (string, error) {
	out := []string{
		"# ///////////////////////////////////////////////",
		"# Signal Demo Configuration",
		"# ///////////////////////////////////////////////",
		"#",
		"# Point SIGDEMO_CONFIG at a copy of this file. Values shown are the defaults.",
	}

	for _, sec := range sections(cfg) {
		var raw bytes.Buffer
		if err := toml.NewEncoder(&raw).Encode(sec.value); err != nil {
			return "", fmt.Errorf("encode %q: %w", sec.name, err)
		}

		out = append(out, "")
		if sec.name != "" {
			out = append(out, fmt.Sprintf("# ///// %s /////", sectionName(sec.name)), "")
			out = appendComment(out, docs[sec.name].Comment)
			out = append(out, "["+sec.name+"]")
		}

		emitted := map[string]bool{}
		for _, line := range strings.Split(raw.String(), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			key := strings.TrimSpace(strings.SplitN(line, "=", 2)[0])
			path := keyPath(sec.name, key)
			emitted[path] = true

			doc := docs[path]
			out = appendComment(out, doc.Comment)
			out = append(out, line)
			for _, alt := range doc.Alternatives {
				out = append(out, "# "+alt)
			}
		}

		for _, path := range omitted(sec.name, docs, emitted) {
			doc := docs[path]
			out = append(out, "")
			out = appendComment(out, doc.Comment)
			for _, alt := range doc.Alternatives {
				out = append(out, "# "+alt)
			}
		}
	}

	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n", nil
}

// omitted returns the documented keys directly under sec that were not
// emitted, sorted for deterministic output.
func omitted(sec string, docs map[string]config.FieldDoc, emitted map[string]bool) []string {
	var keys []string
	for path := range docs {
		if emitted[path] || path == sec {
			continue
		}
		parent, _, found := strings.Cut(path, ".")
		if sec == "" {
			// Root keys have no dot; bare section names are not keys.
			if found || isSection(path, docs) {
				continue
			}
		} else if !found || parent != sec || strings.Count(path, ".") != 1 {
			continue
		}
		keys = append(keys, path)
	}
	sort.Strings(keys)
	return keys
}

// isSection reports whether name is the parent of any documented key.
func isSection(name string, docs map[string]config.FieldDoc) bool {
	for path := range docs {
		if strings.HasPrefix(path, name+".") {
			return true
		}
	}
	return false
}

func keyPath(sec, key string) string {
	if sec == "" {
		return key
	}
	return sec + "." + key
}

func appendComment(out []string, comment string) []string {
	if comment == "" {
		return out
	}
	for _, cl := range strings.Split(comment, "\n") {
		out = append(out, "# "+cl)
	}
	return out
}

// sectionName capitalises a section name for its banner: "log" -> "Log".
func sectionName(section string) string {
	if section == "" {
		return ""
	}
	return strings.ToUpper(section[:1]) + section[1:]
}
