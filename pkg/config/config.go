package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	DB                string // connection string for the database
	NatsURL           string // URL of the NATS server
	CatalogFile       string // path to the track catalog file
	HTTPAddr          string // listen address of the HTTP API
	WaitForServices   string // duration to wait for other services to be ready
	LogLevel          string // sets the log level (zap log level values)
	SQLLogLevel       string // sets the log level for sql subsystem
	LogFormat         string // text vs json
	LogConfig         string // zapfilter rules, for example "debug+:lap.* info+:*"
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry, "stdout" prints the metrics
)

// Engine holds the tunables of detection, segmentation and analysis.
type Engine struct {
	LineToleranceM      float64 // max distance of a crossing to the start/finish line
	MinLapTimeMs        int64   // debounce between two crossings
	MinValidDistanceM   float64 // min distance of a valid lap (>= 10)
	BoundaryToleranceM  float64 // max distance of a sector boundary match
	BucketSizeM         float64 // step size of lap comparisons
	AcceptanceThreshold float64 // confidence needed to bind a track
	DetectMaxDistanceM  float64 // confidence drops to zero at this distance
	DetectRadiusM       float64 // tracks beyond are not considered at all
	DeadReckoningMs     int64   // detection look ahead, 0 disables it
	FlushPartial        bool    // emit an unfinished lap when a session stops
}

func DefaultEngine() Engine {
	return Engine{
		LineToleranceM:      30,
		MinLapTimeMs:        15000,
		MinValidDistanceM:   100,
		BoundaryToleranceM:  50,
		BucketSizeM:         10,
		AcceptanceThreshold: 0.8,
		DetectMaxDistanceM:  1000,
		DetectRadiusM:       10000,
		DeadReckoningMs:     0,
		FlushPartial:        false,
	}
}

// EngineConfig is bound to the command line flags.
var EngineConfig = DefaultEngine()
