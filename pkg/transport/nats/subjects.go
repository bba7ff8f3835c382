// Package nats connects sessions to a NATS server.
// Telemetry samples are consumed from telemetry.<vehicle>, completed laps are
// published to laps.<vehicle> and the latest analysis per track and vehicle is
// kept in a jetstream key value bucket.
package nats

import (
	"fmt"
	"strings"

	"github.com/mpapenbr/trackside/pkg/model"
)

const (
	TelemetrySubjectPrefix = "telemetry"
	LapSubjectPrefix       = "laps"
	DefaultAnalysisBucket  = "trackside_analysis"
)

// TelemetrySubject is the subject a telemetry source publishes samples of vehicle to.
func TelemetrySubject(vehicle string) string {
	return fmt.Sprintf("%s.%s", TelemetrySubjectPrefix, Token(vehicle))
}

func LapSubject(vehicle string) string {
	return fmt.Sprintf("%s.%s", LapSubjectPrefix, Token(vehicle))
}

// VehicleFromSubject returns the last token of subject.
func VehicleFromSubject(subject string) string {
	if idx := strings.LastIndexByte(subject, '.'); idx >= 0 {
		return subject[idx+1:]
	}
	return subject
}

// AnalysisKey is the key value key of the analysis of vehicle on track.
func AnalysisKey(trackID model.TrackID, vehicle string) string {
	return fmt.Sprintf("%s.%s", Token(string(trackID)), Token(vehicle))
}

// Token replaces everything that is not allowed in a subject token or key.
func Token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
