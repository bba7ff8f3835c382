// Package public provides the read only HTTP API for tracks, laps and
// analyses together with a server sent event stream of new laps.
package public

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/processing/compare"
	"github.com/mpapenbr/trackside/pkg/repository/lap"
	"github.com/mpapenbr/trackside/pkg/service"
	natstransport "github.com/mpapenbr/trackside/pkg/transport/nats"
	"github.com/mpapenbr/trackside/pkg/utils/broadcast"
	"github.com/mpapenbr/trackside/pkg/utils/cache"
	"github.com/mpapenbr/trackside/pkg/utils/cache/loadercache"
	"github.com/mpapenbr/trackside/version"
)

var errBadRequest = errors.New("bad request")

// Store is implemented by service.LapService.
type Store interface {
	service.LapSource
	Tracks(ctx context.Context) ([]model.TrackGeometry, error)
	Track(ctx context.Context, id model.TrackID) (*model.TrackGeometry, error)
}

// AnalysisLoader is implemented by the NATS publisher.
type AnalysisLoader interface {
	LoadAnalysis(ctx context.Context, trackID model.TrackID, vehicle string) (
		*model.TrackAnalysis, error)
}

// LapSummary is a stored lap without its samples.
type LapSummary struct {
	ID        int64            `json:"id"`
	SessionID string           `json:"sessionId"`
	Lap       *model.LapRecord `json:"lap"`
}

type PublicManager struct {
	store       Store
	analysis    AnalysisLoader
	events      broadcast.BroadcastServer[*model.LapEvent]
	bucketSizeM float64
	reportTTL   time.Duration
	reports     cache.Cache[model.TrackID, service.TrackReport]
	log         *log.Logger
	endpoints   []endpointHandler
}

type endpointHandler struct {
	pattern string
	handler http.HandlerFunc
}

type Option func(m *PublicManager)

func WithAnalysisLoader(l AnalysisLoader) Option {
	return func(m *PublicManager) {
		m.analysis = l
	}
}

// WithLapEvents enables the event stream.
func WithLapEvents(b broadcast.BroadcastServer[*model.LapEvent]) Option {
	return func(m *PublicManager) {
		m.events = b
	}
}

// WithBucketSize sets the default bucket size of lap comparisons.
func WithBucketSize(meters float64) Option {
	return func(m *PublicManager) {
		m.bucketSizeM = meters
	}
}

// WithReportTTL sets how long track reports are cached.
func WithReportTTL(d time.Duration) Option {
	return func(m *PublicManager) {
		m.reportTTL = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(m *PublicManager) {
		m.log = l
	}
}

func NewPublicManager(store Store, opts ...Option) *PublicManager {
	ret := &PublicManager{
		store:       store,
		bucketSizeM: compare.DefaultBucketSizeM,
		reportTTL:   30 * time.Second,
		log:         log.Default().Named("public"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.reports = loadercache.New(
		loadercache.WithExpiration[model.TrackID, service.TrackReport](ret.reportTTL),
		loadercache.WithLogger[model.TrackID, service.TrackReport](ret.log.Named("cache")),
		loadercache.WithLoader[model.TrackID, service.TrackReport](func(ctx context.Context, id model.TrackID) (*service.TrackReport, error) {
			return service.AnalyzeTrack(ctx, store, id)
		}))
	ret.endpoints = []endpointHandler{
		{pattern: "GET /healthz", handler: ret.health},
		{pattern: "GET /api/v1/version", handler: ret.version},
		{pattern: "GET /api/v1/tracks", handler: ret.getTracks},
		{pattern: "GET /api/v1/tracks/{id}", handler: ret.getTrack},
		{pattern: "GET /api/v1/tracks/{id}/laps", handler: ret.getTrackLaps},
		{pattern: "GET /api/v1/tracks/{id}/analysis", handler: ret.getTrackAnalysis},
		{pattern: "GET /api/v1/tracks/{id}/vehicles/{vehicle}/analysis", handler: ret.getLiveAnalysis},
		{pattern: "GET /api/v1/laps/{id}", handler: ret.getLap},
		{pattern: "GET /api/v1/compare", handler: ret.compareLaps},
		{pattern: "GET /api/v1/events", handler: ret.streamEvents},
	}
	return ret
}

// Register adds the endpoints to mux.
func (m *PublicManager) Register(mux *http.ServeMux) {
	for _, e := range m.endpoints {
		mux.HandleFunc(e.pattern, e.handler)
	}
}

func (m *PublicManager) Handler() http.Handler {
	mux := http.NewServeMux()
	m.Register(mux)
	return mux
}

func (m *PublicManager) health(w http.ResponseWriter, r *http.Request) {
	m.writeJSON(w, map[string]string{"status": "ok"})
}

func (m *PublicManager) version(w http.ResponseWriter, r *http.Request) {
	m.writeJSON(w, map[string]string{
		"ownVersion":    version.Version,
		"catalogFormat": version.CatalogFormat,
	})
}

func (m *PublicManager) getTracks(w http.ResponseWriter, r *http.Request) {
	getGeneric(m, w, r, noArg, func(ctx context.Context, _ struct{}) ([]model.TrackGeometry, error) {
		return m.store.Tracks(ctx)
	})
}

func (m *PublicManager) getTrack(w http.ResponseWriter, r *http.Request) {
	getGeneric(m, w, r, trackArg, m.store.Track)
}

func (m *PublicManager) getTrackLaps(w http.ResponseWriter, r *http.Request) {
	getGeneric(m, w, r, trackArg, func(ctx context.Context, id model.TrackID) ([]LapSummary, error) {
		stored, err := m.store.TrackLaps(ctx, id)
		if err != nil {
			return nil, err
		}
		return lo.Map(stored, func(s lap.StoredLap, _ int) LapSummary { return summary(&s) }), nil
	})
}

func (m *PublicManager) getTrackAnalysis(w http.ResponseWriter, r *http.Request) {
	getGeneric(m, w, r, trackArg, m.reports.Get)
}

func (m *PublicManager) getLiveAnalysis(w http.ResponseWriter, r *http.Request) {
	if m.analysis == nil {
		m.writeError(w, r, service.ErrNotFound)
		return
	}
	vehicle := r.PathValue("vehicle")
	getGeneric(m, w, r, trackArg, func(ctx context.Context, id model.TrackID) (*model.TrackAnalysis, error) {
		return m.analysis.LoadAnalysis(ctx, id, vehicle)
	})
}

func (m *PublicManager) getLap(w http.ResponseWriter, r *http.Request) {
	getGeneric(m, w, r, int64Arg("id"), m.store.Lap)
}

type compareArgs struct {
	a, b   int64
	bucket float64
}

func (m *PublicManager) compareLaps(w http.ResponseWriter, r *http.Request) {
	extract := func(r *http.Request) (compareArgs, error) {
		ret := compareArgs{bucket: m.bucketSizeM}
		var err error
		q := r.URL.Query()
		if ret.a, err = strconv.ParseInt(q.Get("a"), 10, 64); err != nil {
			return ret, fmt.Errorf("%w: lap a: %w", errBadRequest, err)
		}
		if ret.b, err = strconv.ParseInt(q.Get("b"), 10, 64); err != nil {
			return ret, fmt.Errorf("%w: lap b: %w", errBadRequest, err)
		}
		if s := q.Get("bucket"); s != "" {
			if ret.bucket, err = strconv.ParseFloat(s, 64); err != nil || ret.bucket <= 0 {
				return ret, fmt.Errorf("%w: invalid bucket %q", errBadRequest, s)
			}
		}
		return ret, nil
	}
	getGeneric(m, w, r, extract, func(ctx context.Context, arg compareArgs) (*model.LapComparison, error) {
		return service.CompareLaps(ctx, m.store, arg.a, arg.b, arg.bucket)
	})
}

// streamEvents sends every new lap as server sent event. The optional query
// parameter vehicle restricts the stream to one vehicle.
func (m *PublicManager) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if m.events == nil || !ok {
		http.Error(w, "event stream not available", http.StatusNotImplemented)
		return
	}
	vehicle := r.URL.Query().Get("vehicle")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := m.events.Subscribe()
	defer m.events.CancelSubscription(ch)
	m.log.Debug("event listener added", log.String("vehicle", vehicle))
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if vehicle != "" && ev.Vehicle != vehicle {
				continue
			}
			out := *ev
			out.Lap = withoutSamples(ev.Lap)
			data, err := json.Marshal(&out)
			if err != nil {
				m.log.Error("could not encode event", log.ErrorField(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: lap\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

//nolint:whitespace // can't make the linters happy
func getGeneric[A, R any](
	m *PublicManager,
	w http.ResponseWriter,
	r *http.Request,
	extract func(r *http.Request) (A, error),
	load func(ctx context.Context, arg A) (R, error),
) {
	arg, err := extract(r)
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	ret, err := load(r.Context(), arg)
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	m.writeJSON(w, ret)
}

func noArg(*http.Request) (struct{}, error) {
	return struct{}{}, nil
}

func trackArg(r *http.Request) (model.TrackID, error) {
	return model.TrackID(r.PathValue("id")), nil
}

func int64Arg(name string) func(r *http.Request) (int64, error) {
	return func(r *http.Request) (int64, error) {
		ret, err := strconv.ParseInt(r.PathValue(name), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", errBadRequest, name, err)
		}
		return ret, nil
	}
}

func (m *PublicManager) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.log.Warn("could not write response", log.ErrorField(err))
	}
}

func (m *PublicManager) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound), errors.Is(err, natstransport.ErrAnalysisNotFound):
		status = http.StatusNotFound
	case errors.Is(err, compare.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		m.log.Error("request failed", log.String("path", r.URL.Path), log.ErrorField(err))
	}
	http.Error(w, err.Error(), status)
}

func summary(s *lap.StoredLap) LapSummary {
	return LapSummary{ID: s.ID, SessionID: s.SessionID.String(), Lap: withoutSamples(s.Lap)}
}

func withoutSamples(l *model.LapRecord) *model.LapRecord {
	ret := *l
	ret.Samples = nil
	return &ret
}
