// Package report renders processing results for the command line.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"

	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/processing"
	"github.com/mpapenbr/trackside/pkg/repository/lap"
	"github.com/mpapenbr/trackside/pkg/service"
)

// Session summarizes a processed session.
type Session struct {
	SessionID string               `json:"sessionId"`
	Vehicle   string               `json:"vehicle"`
	TrackID   model.TrackID        `json:"trackId,omitempty"`
	Rejected  int                  `json:"rejected"`
	Laps      []*model.LapRecord   `json:"laps"`
	Analysis  *model.TrackAnalysis `json:"analysis,omitempty"`
	Sectors   []model.SectorStats  `json:"sectors,omitempty"`
	Metrics   model.SessionMetrics `json:"metrics"`
}

func FromSession(s *processing.Session, rejected int) *Session {
	ret := &Session{
		SessionID: s.ID().String(),
		Vehicle:   s.Vehicle(),
		Rejected:  rejected,
		Laps:      s.Laps(),
		Metrics:   s.Metrics(),
	}
	ret.TrackID, _ = s.Track()
	if ta, err := s.Analysis(); err == nil {
		ret.Analysis = &ta
		ret.Sectors = s.SectorAnalysis()
	}
	return ret
}

// WithoutSamples returns a copy whose laps carry no samples.
func (s *Session) WithoutSamples() *Session {
	ret := *s
	ret.Laps = lo.Map(s.Laps, func(l *model.LapRecord, _ int) *model.LapRecord {
		c := *l
		c.Samples = nil
		return &c
	})
	return &ret
}

func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatLapTime formats milliseconds as m:ss.SSS
func FormatLapTime(ms int64) string {
	sign := ""
	if ms < 0 {
		sign = "-"
		ms = -ms
	}
	return fmt.Sprintf("%s%d:%02d.%03d", sign, ms/60000, (ms/1000)%60, ms%1000)
}

// FormatDelta formats milliseconds as signed seconds.
func FormatDelta(ms int64) string {
	return fmt.Sprintf("%+.3f", float64(ms)/1000)
}

func WriteSession(w io.Writer, s *Session) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "session\t%s\n", s.SessionID)
	fmt.Fprintf(tw, "vehicle\t%s\n", s.Vehicle)
	fmt.Fprintf(tw, "track\t%s\n", lo.Ternary(s.TrackID == "", "(not detected)", string(s.TrackID)))
	fmt.Fprintf(tw, "samples\t%d (rejected %d)\n", s.Metrics.Samples, s.Rejected)
	fmt.Fprintf(tw, "distance\t%.1f m\n", s.Metrics.DistanceM)
	fmt.Fprintf(tw, "speed\tavg %.1f km/h, max %.1f km/h\n", s.Metrics.AvgSpeedKmh, s.Metrics.MaxSpeedKmh)
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(s.Laps) > 0 {
		fmt.Fprintln(w)
		if err := writeLaps(w, s.Laps, nil); err != nil {
			return err
		}
	}
	if s.Analysis != nil {
		fmt.Fprintln(w)
		return writeAnalysis(w, s.Analysis, s.Sectors)
	}
	return nil
}

// WriteTrackReport prints the stored laps of a track and their analysis.
func WriteTrackReport(w io.Writer, r *service.TrackReport, stored []lap.StoredLap) error {
	ids := lo.Map(stored, func(s lap.StoredLap, _ int) int64 { return s.ID })
	if err := writeLaps(w, lap.Records(stored), ids); err != nil {
		return err
	}
	fmt.Fprintln(w)
	if err := writeAnalysis(w, &r.Analysis, r.Sectors); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "best lap id %d\n", r.BestLapID)
	return err
}

func WriteComparison(w io.Writer, c *model.LapComparison) error {
	fmt.Fprintf(w, "lap %d vs lap %d: %s s, bucket %.1f m\n\n",
		c.LapA, c.LapB, FormatDelta(c.TimeDifferenceMs), c.BucketSizeM)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "DIST\tSPEED A\tSPEED B\tΔSPEED\tΔTHROTTLE\tOFFSET\tΔTIME\t")
	for i := range c.Buckets {
		b := &c.Buckets[i]
		throttle := "-"
		if v, ok := b.ThrottleDelta.Get(); ok {
			throttle = fmt.Sprintf("%+.1f", v)
		}
		fmt.Fprintf(tw, "%.0f\t%.1f\t%.1f\t%+.1f\t%s\t%.1f\t%s\t\n",
			b.DistanceM, b.SpeedA, b.SpeedB, b.SpeedDeltaKmh, throttle,
			b.LateralOffsetM, FormatDelta(b.TimeDeltaMs))
	}
	return tw.Flush()
}

func writeLaps(w io.Writer, laps []*model.LapRecord, ids []int64) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := "LAP\tTIME\tDISTANCE\tAVG\tMAX\tVALID\tSECTORS"
	if ids != nil {
		header = "ID\t" + header
	}
	fmt.Fprintln(tw, header)
	for i, l := range laps {
		if ids != nil {
			fmt.Fprintf(tw, "%d\t", ids[i])
		}
		valid := "yes"
		if !l.IsValid {
			valid = "no (" + l.Invalidity + ")"
		}
		sectors := lo.Map(l.Sectors, func(s model.SectorResult, _ int) string {
			return fmt.Sprintf("%.3f%s", float64(s.TimeMs)/1000, lo.Ternary(s.Estimated, "*", ""))
		})
		fmt.Fprintf(tw, "%d\t%s\t%.1f\t%.1f\t%.1f\t%s\t%s\n",
			l.LapNumber, FormatLapTime(l.LapTimeMs), l.DistanceM, l.AvgSpeedKmh, l.MaxSpeedKmh,
			valid, strings.Join(sectors, " "))
	}
	return tw.Flush()
}

func writeAnalysis(w io.Writer, ta *model.TrackAnalysis, sectors []model.SectorStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "laps\t%d (valid %d)\n", ta.TotalLaps, ta.ValidLaps)
	fmt.Fprintf(tw, "best\t%s (lap %d)\n", FormatLapTime(ta.BestLapTimeMs), ta.BestLapNumber)
	fmt.Fprintf(tw, "average\t%s (stddev %.0f ms)\n", FormatLapTime(ta.AvgLapTimeMs), ta.StdDevMs)
	fmt.Fprintf(tw, "consistency\t%.1f\n", ta.ConsistencyRating)
	if ta.TheoreticalBestMs > 0 {
		fmt.Fprintf(tw, "theoretical best\t%s\n", FormatLapTime(ta.TheoreticalBestMs))
	}
	if ta.Degraded {
		fmt.Fprintln(tw, "note\tno valid laps, all laps used")
	}
	if len(sectors) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "SECTOR\tBEST\tLAP\tAVG\tESTIMATED")
		for _, s := range sectors {
			fmt.Fprintf(tw, "%d\t%.3f\t%d\t%.3f\t%d\n",
				s.Ordinal, float64(s.BestMs)/1000, s.BestLap, float64(s.AvgMs)/1000, s.Estimated)
		}
	}
	return tw.Flush()
}
