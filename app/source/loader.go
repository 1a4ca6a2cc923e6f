package source

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCadence = 3600 // seconds
	DefaultTimeout = 30   // seconds
	DefaultWeight  = 1.0
)

type Loader struct {
	sourcesDir string
}

func NewLoader(sourcesDir string) *Loader {
	return &Loader{sourcesDir: sourcesDir}
}

// Run loads every *.yml / *.yaml file in the sources directory. Any invalid
// descriptor fails the whole load with a *ConfigError.
func (l *Loader) Run() ([]*Descriptor, error) {
	if _, err := os.Stat(l.sourcesDir); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(l.sourcesDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to find source files: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	seen := make(map[string]string, len(files))
	descriptors := make([]*Descriptor, 0, len(files))

	for _, file := range files {
		id := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))

		if prev, ok := seen[id]; ok {
			return nil, &ConfigError{Kind: ErrDuplicateSource, Source: id, Detail: fmt.Sprintf("defined in %s and %s", prev, file)}
		}
		seen[id] = file

		desc, err := l.LoadFile(id, file)
		if err != nil {
			return nil, err
		}

		slog.Debug("Source loaded", "source", id, "format", desc.Format, "enabled", desc.Enabled(), "cadence", desc.Cadence())
		descriptors = append(descriptors, desc)
	}

	return descriptors, nil
}

func (l *Loader) LoadFile(id, file string) (*Descriptor, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, &ConfigError{Kind: ErrUnreadable, Source: id, Cause: err}
	}

	desc, err := Parse(id, data)
	if err != nil {
		return nil, err
	}

	return desc, nil
}

// Parse decodes one descriptor document, applies defaults and validates it.
func Parse(id string, data []byte) (*Descriptor, error) {
	var desc Descriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, &ConfigError{Kind: ErrUnreadable, Source: id, Detail: "failed to parse YAML", Cause: err}
	}

	desc.ID = id
	applyDefaults(&desc)

	if err := validate(&desc); err != nil {
		return nil, err
	}

	return &desc, nil
}

func applyDefaults(desc *Descriptor) {
	if desc.Format == "" {
		desc.Format = FormatRSS
	}
	desc.Format = Format(strings.ToLower(strings.TrimSpace(string(desc.Format))))

	if desc.Settings.Cadence == 0 {
		desc.Settings.Cadence = DefaultCadence
	}
	if desc.Settings.Timeout == 0 {
		desc.Settings.Timeout = DefaultTimeout
	}
	if desc.Weight == 0 {
		desc.Weight = DefaultWeight
	}
	desc.Category = strings.ToLower(strings.TrimSpace(desc.Category))
}

func validate(desc *Descriptor) error {
	u, err := url.Parse(desc.URL)
	if desc.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{Kind: ErrInvalidURL, Source: desc.ID, Detail: fmt.Sprintf("url must be absolute http(s), got %q", desc.URL)}
	}

	if !desc.Format.Valid() {
		return &ConfigError{Kind: ErrUnknownSourceFormat, Source: desc.ID, Detail: string(desc.Format)}
	}

	if desc.Settings.Cadence < 0 {
		return &ConfigError{Kind: ErrInvalidCadence, Source: desc.ID, Detail: fmt.Sprintf("cadence must be positive, got %d", desc.Settings.Cadence)}
	}
	if desc.Settings.Timeout < 0 {
		return &ConfigError{Kind: ErrInvalidCadence, Source: desc.ID, Detail: fmt.Sprintf("timeout must be positive, got %d", desc.Settings.Timeout)}
	}

	if desc.Format == FormatHTML && (desc.Selectors.Title == "" || desc.Selectors.Link == "") {
		return &ConfigError{Kind: ErrMissingSelectors, Source: desc.ID, Detail: "html sources need title and link selectors"}
	}

	validFields := map[string]bool{
		"title":   true,
		"body":    true,
		"url":     true,
		"authors": true,
	}

	for i, filter := range desc.Filters {
		if !validFields[filter.Field] {
			return &ConfigError{Kind: ErrInvalidFilter, Source: desc.ID, Detail: fmt.Sprintf("invalid filter field at index %d: %s", i, filter.Field)}
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return &ConfigError{Kind: ErrInvalidFilter, Source: desc.ID, Detail: fmt.Sprintf("filter at index %d must have at least one include or exclude rule", i)}
		}
	}

	return nil
}
