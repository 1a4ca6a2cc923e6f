package cfg

import "time"

type Mode string

const (
	ModeSchedule Mode = "schedule"
	ModeAPI      Mode = "api"
	ModeOnce     Mode = "once"
)

type Cfg struct {
	Mode Mode

	// Storage and sources
	DBPath     string
	SourcesDir string

	// HTTP API
	Host    string
	Port    string
	BaseUrl string

	// Pipeline
	WorkerCount         int
	TickInterval        time.Duration
	StoreTimeout        time.Duration
	FetchTimeout        time.Duration
	FetchAttempts       int
	HostInterval        time.Duration
	MaxBodySize         int64
	QuarantineThreshold int
	BackoffFactor       float64
	MaxCadence          time.Duration
	WindowSize          int

	// Application metadata
	UserAgent string
	Timezone  string
	LogLevel  string
	Env       string
	Debug     bool
	Version   string
}
