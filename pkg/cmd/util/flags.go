package util

import (
	"github.com/spf13/pflag"

	"github.com/mpapenbr/trackside/pkg/config"
)

// AddEngineFlags binds the engine tunables to fs.
func AddEngineFlags(fs *pflag.FlagSet) {
	e := &config.EngineConfig
	fs.Float64Var(&e.LineToleranceM, "line-tolerance",
		e.LineToleranceM,
		"max distance (m) of a crossing to the start/finish line")
	fs.Int64Var(&e.MinLapTimeMs, "min-lap-time",
		e.MinLapTimeMs,
		"min time (ms) between two start/finish crossings")
	fs.Float64Var(&e.MinValidDistanceM, "min-valid-distance",
		e.MinValidDistanceM,
		"min distance (m) of a valid lap (>= 10)")
	fs.Float64Var(&e.BoundaryToleranceM, "boundary-tolerance",
		e.BoundaryToleranceM,
		"max distance (m) of a sample to a sector boundary")
	fs.Float64Var(&e.BucketSizeM, "bucket-size",
		e.BucketSizeM,
		"distance (m) between two points of a lap comparison")
	fs.Float64Var(&e.AcceptanceThreshold, "acceptance-threshold",
		e.AcceptanceThreshold,
		"confidence needed to bind a session to a track")
	fs.Float64Var(&e.DetectMaxDistanceM, "detect-max-distance",
		e.DetectMaxDistanceM,
		"distance (m) at which the detection confidence drops to zero")
	fs.Float64Var(&e.DetectRadiusM, "detect-radius",
		e.DetectRadiusM,
		"tracks beyond this distance (m) are not considered")
	fs.Int64Var(&e.DeadReckoningMs, "dead-reckoning",
		e.DeadReckoningMs,
		"look ahead (ms) for track detection, 0 disables it")
	fs.BoolVar(&e.FlushPartial, "flush-partial",
		e.FlushPartial,
		"emit the unfinished lap as partial lap when a session stops")
}
