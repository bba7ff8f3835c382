package service

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/processing"
	"github.com/mpapenbr/trackside/pkg/repository/lap"
	natstransport "github.com/mpapenbr/trackside/pkg/transport/nats"
)

// Recorder passes the results of processing sessions to the configured
// sinks: database, NATS and a local event handler. Every sink is optional.
// Sink errors are logged, they never stop the processing.
type Recorder struct {
	laps      *LapService
	publisher *natstransport.Publisher
	onEvent   func(ev *model.LapEvent)
	log       *log.Logger

	mu         sync.Mutex
	registered map[uuid.UUID]bool
}

type RecorderOption func(r *Recorder)

func WithLapService(s *LapService) RecorderOption {
	return func(r *Recorder) {
		r.laps = s
	}
}

func WithPublisher(p *natstransport.Publisher) RecorderOption {
	return func(r *Recorder) {
		r.publisher = p
	}
}

// WithEventHandler is called for every lap after it was stored.
func WithEventHandler(h func(ev *model.LapEvent)) RecorderOption {
	return func(r *Recorder) {
		r.onEvent = h
	}
}

func WithRecorderLogger(l *log.Logger) RecorderOption {
	return func(r *Recorder) {
		r.log = l
	}
}

func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		log:        log.Default().Named("recorder"),
		registered: make(map[uuid.UUID]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ManagerOptions wires the recorder into a processing.Manager.
func (r *Recorder) ManagerOptions(ctx context.Context) []processing.ManagerOption {
	return []processing.ManagerOption{
		processing.WithBindCallback(func(s *processing.Session, geom *model.TrackGeometry) {
			r.SessionBound(ctx, s, geom)
		}),
		processing.WithLapCallback(func(s *processing.Session, l *model.LapRecord) {
			r.LapCompleted(ctx, s, l)
		}),
		processing.WithStopCallback(func(s *processing.Session) {
			r.SessionStopped(ctx, s)
		}),
	}
}

func (r *Recorder) SessionBound(ctx context.Context, s *processing.Session, geom *model.TrackGeometry) {
	if r.laps == nil {
		return
	}
	err := r.laps.RegisterSession(ctx, &lap.Session{
		ID:        s.ID(),
		Vehicle:   s.Vehicle(),
		StartedAt: time.Now(),
	}, geom)
	if err != nil {
		r.log.Error("could not register session",
			log.String("session", s.ID().String()),
			log.ErrorField(err))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered[s.ID()] = true
}

func (r *Recorder) LapCompleted(ctx context.Context, s *processing.Session, l *model.LapRecord) {
	ev := &model.LapEvent{SessionID: s.ID().String(), Vehicle: s.Vehicle(), Lap: l}
	if r.isRegistered(s.ID()) {
		if id, err := r.laps.StoreLap(ctx, s.ID(), l); err != nil {
			r.log.Error("could not store lap",
				log.String("session", ev.SessionID),
				log.Int("lap", l.LapNumber),
				log.ErrorField(err))
		} else {
			r.log.Debug("lap stored", log.Int64("id", id), log.Int("lap", l.LapNumber))
		}
	}
	if r.publisher != nil {
		if err := r.publisher.PublishLap(ev); err != nil {
			r.log.Error("could not publish lap", log.ErrorField(err))
		}
		if ta, err := s.Analysis(); err == nil {
			if err := r.publisher.StoreAnalysis(ctx, s.Vehicle(), &ta); err != nil {
				r.log.Error("could not store analysis", log.ErrorField(err))
			}
		}
	}
	if r.onEvent != nil {
		r.onEvent(ev)
	}
}

func (r *Recorder) SessionStopped(ctx context.Context, s *processing.Session) {
	if !r.isRegistered(s.ID()) {
		return
	}
	if err := r.laps.EndSession(ctx, s.ID(), time.Now()); err != nil {
		r.log.Error("could not end session",
			log.String("session", s.ID().String()),
			log.ErrorField(err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, s.ID())
}

func (r *Recorder) isRegistered(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registered[id]
}
