package service

import (
	"context"
	"slices"

	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/processing/analytics"
	"github.com/mpapenbr/trackside/pkg/processing/compare"
	"github.com/mpapenbr/trackside/pkg/repository/lap"
)

// LapSource provides stored laps. Implemented by LapService.
type LapSource interface {
	TrackLaps(ctx context.Context, id model.TrackID) ([]lap.StoredLap, error)
	Lap(ctx context.Context, id int64) (*lap.StoredLap, error)
}

// TrackReport is the analysis of all stored laps of a track.
type TrackReport struct {
	Analysis model.TrackAnalysis `json:"analysis"`
	Sectors  []model.SectorStats `json:"sectors"`
	// BestLapID is the database id of the best lap
	BestLapID int64 `json:"bestLapId"`
}

// AnalyzeTrack returns ErrNotFound if there are no laps for the track.
func AnalyzeTrack(ctx context.Context, src LapSource, id model.TrackID) (*TrackReport, error) {
	stored, err := src.TrackLaps(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, ErrNotFound
	}
	a := analytics.NewAnalyzer()
	records := lap.Records(stored)
	ta, err := a.TrackAnalysis(records)
	if err != nil {
		return nil, err
	}
	ret := &TrackReport{Analysis: ta, Sectors: a.SectorAnalysis(records)}
	// laps of different sessions share lap numbers
	if idx := slices.IndexFunc(stored, func(s lap.StoredLap) bool {
		return s.Lap.LapNumber == ta.BestLapNumber && s.Lap.LapTimeMs == ta.BestLapTimeMs &&
			(s.Lap.IsValid || ta.Degraded)
	}); idx >= 0 {
		ret.BestLapID = stored[idx].ID
	}
	return ret, nil
}

// CompareLaps compares two stored laps by database id. Deltas are B minus A.
func CompareLaps(
	ctx context.Context,
	src LapSource,
	idA, idB int64,
	bucketSizeM float64,
) (*model.LapComparison, error) {
	a, err := src.Lap(ctx, idA)
	if err != nil {
		return nil, err
	}
	b, err := src.Lap(ctx, idB)
	if err != nil {
		return nil, err
	}
	ret, err := compare.NewComparator(compare.WithBucketSize(bucketSizeM)).Compare(a.Lap, b.Lap)
	if err != nil {
		return nil, err
	}
	return &ret, nil
}
