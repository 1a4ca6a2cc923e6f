package source

import (
	"time"
)

type Format string

const (
	FormatRSS      Format = "rss"
	FormatAtom     Format = "atom"
	FormatJSONFeed Format = "jsonfeed"
	FormatHTML     Format = "html"
	FormatArticle  Format = "article"
)

var knownFormats = map[Format]bool{
	FormatRSS:      true,
	FormatAtom:     true,
	FormatJSONFeed: true,
	FormatHTML:     true,
	FormatArticle:  true,
}

func (f Format) Valid() bool {
	return knownFormats[f]
}

// Descriptor is one crawl target plus the attempt bookkeeping the scheduler
// keeps for it. Bookkeeping fields are only written through Registry.RecordAttempt.
type Descriptor struct {
	ID        string    // Derived from filename (without extension)
	URL       string    `yaml:"url"`
	Format    Format    `yaml:"format"`
	Category  string    `yaml:"category"`
	Weight    float64   `yaml:"weight"`
	Settings  Settings  `yaml:"settings"`
	Selectors Selectors `yaml:"selectors"`
	Filters   []Filter  `yaml:"filters"`

	LastAttemptAt       time.Time `yaml:"-"`
	LastSuccessAt       time.Time `yaml:"-"`
	ConsecutiveFailures int       `yaml:"-"`
	ETag                string    `yaml:"-"`
	LastModified        string    `yaml:"-"`
}

type Settings struct {
	Enabled *bool `yaml:"enabled"`
	Cadence int   `yaml:"cadence"` // seconds
	Timeout int   `yaml:"timeout"` // seconds
}

// Selectors drive the html format. Item scopes each entry on a listing page;
// the other selectors are evaluated inside it.
type Selectors struct {
	Item      string `yaml:"item"`
	Title     string `yaml:"title"`
	Link      string `yaml:"link"`
	Summary   string `yaml:"summary"`
	Published string `yaml:"published"`
}

type Filter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

func (d *Descriptor) Enabled() bool {
	return d.Settings.Enabled == nil || *d.Settings.Enabled
}

func (d *Descriptor) Cadence() time.Duration {
	return time.Duration(d.Settings.Cadence) * time.Second
}

func (d *Descriptor) Timeout() time.Duration {
	return time.Duration(d.Settings.Timeout) * time.Second
}

// Bookkeeping is the persisted part of a descriptor's attempt history.
type Bookkeeping struct {
	SourceID            string
	LastAttemptAt       *time.Time
	LastSuccessAt       *time.Time
	ConsecutiveFailures int
	ETag                string
	LastModified        string
	LastStatus          string
	LastError           string
	UpdatedAt           time.Time
}

// AttemptResult is what the scheduler reports back after a dispatch.
type AttemptResult struct {
	Success      bool
	ETag         string
	LastModified string
}
