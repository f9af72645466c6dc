// Package config loads and persists config.ini: the key/value file spec §6
// places at <cafdir>/config.ini, with a `core` section plus named `remote`
// and `queue` sections.
package config

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/zerr"
)

// Loader reads and writes config.ini files.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load parses the config.ini file at path. A missing file is not an error:
// it yields an empty Config, matching `cellar init`'s expectation that a
// freshly created cafdir has no config.ini yet.
func (l *Loader) Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return newConfig(), nil
	}
	if err != nil {
		return nil, zerr.Wrap(err, "config: open")
	}
	defer f.Close()

	cfg := newConfig()
	var section, subsection string

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, ";") {
			continue
		}

		if strings.HasPrefix(text, "[") {
			section, subsection, err = parseHeader(text)
			if err != nil {
				return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigParseFailed.Error()), "line", line)
			}
			if subsection != "" {
				switch section {
				case "remote":
					cfg.Remotes[subsection] = Remote{}
				case "queue":
					cfg.Queues[subsection] = Queue{}
				}
			}
			continue
		}

		key, value, err := parseAssignment(text)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigParseFailed.Error()), "line", line)
		}
		if err := cfg.set(section, subsection, key, value); err != nil {
			return nil, zerr.With(err, "line", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, zerr.Wrap(err, "config: read")
	}

	return cfg, nil
}

func (c *Config) set(section, subsection, key, value string) error {
	switch section {
	case "core":
		switch key {
		case "cache":
			c.Core.Cache = value
		case "curl":
			c.Core.Curl = value
		case "tmpdir":
			c.Core.Tmpdir = value
		default:
			return zerr.With(domain.ErrConfigParseFailed, "unknown core key", key)
		}
	case "remote":
		r := c.Remotes[subsection]
		switch key {
		case "host":
			r.Host = value
		case "path":
			r.Path = value
		default:
			return zerr.With(domain.ErrConfigParseFailed, "unknown remote key", key)
		}
		c.Remotes[subsection] = r
	case "queue":
		q := c.Queues[subsection]
		switch key {
		case "host":
			q.Host = value
		case "token":
			q.Token = value
		default:
			return zerr.With(domain.ErrConfigParseFailed, "unknown queue key", key)
		}
		c.Queues[subsection] = q
	default:
		return zerr.With(domain.ErrConfigParseFailed, "unknown section", section)
	}
	return nil
}

// parseHeader parses a `[section]` or `[section "name"]` header line.
func parseHeader(line string) (section, subsection string, err error) {
	if !strings.HasSuffix(line, "]") {
		return "", "", zerr.New("config: unterminated section header")
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
	inner = strings.TrimSpace(inner)

	quote := strings.IndexByte(inner, '"')
	if quote == -1 {
		return inner, "", nil
	}
	section = strings.TrimSpace(inner[:quote])
	rest := inner[quote:]
	if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
		return "", "", zerr.New("config: malformed quoted section name")
	}
	return section, rest[1 : len(rest)-1], nil
}

// parseAssignment parses a `key = value` line.
func parseAssignment(line string) (key, value string, err error) {
	idx := strings.IndexByte(line, '=')
	if idx == -1 {
		return "", "", zerr.New("config: expected key = value")
	}
	key = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	return key, value, nil
}

// Save writes cfg back to path in canonical section order: core, then
// remotes, then queues, each alphabetized by name for stable diffs.
func (l *Loader) Save(path string, cfg *Config) error {
	var b strings.Builder

	b.WriteString("[core]\n")
	writeKV(&b, "cache", cfg.Core.Cache)
	writeKV(&b, "curl", cfg.Core.Curl)
	writeKV(&b, "tmpdir", cfg.Core.Tmpdir)

	for _, name := range sortedKeys(cfg.Remotes) {
		r := cfg.Remotes[name]
		fmt.Fprintf(&b, "\n[remote %q]\n", name)
		writeKV(&b, "host", r.Host)
		writeKV(&b, "path", r.Path)
	}

	for _, name := range sortedQueueKeys(cfg.Queues) {
		q := cfg.Queues[name]
		fmt.Fprintf(&b, "\n[queue %q]\n", name)
		writeKV(&b, "host", q.Host)
		writeKV(&b, "token", q.Token)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return zerr.Wrap(err, "config: write")
	}
	return nil
}

func writeKV(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s = %s\n", key, value)
}

func sortedKeys(m map[string]Remote) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedQueueKeys(m map[string]Queue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
