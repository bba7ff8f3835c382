package processing

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/track"
)

var ErrManagerClosed = errors.New("manager closed")

const DefaultQueueSize = 256

type (
	LapCallback   func(s *Session, lap *model.LapRecord)
	BindCallback  func(s *Session, geom *model.TrackGeometry)
	StopCallback  func(s *Session)
	ErrorCallback func(vehicle string, err error)
)

// Manager runs one Session per vehicle. Each vehicle gets its own goroutine
// which consumes the samples in the order they were dispatched.
type Manager struct {
	catalog     atomic.Pointer[track.Catalog]
	sessionOpts []SessionOption
	queueSize   int
	onLap       LapCallback
	onBind      BindCallback
	onStop      StopCallback
	onError     ErrorCallback
	log         *log.Logger

	mu      sync.RWMutex
	workers map[string]*worker
	closed  bool
	wg      sync.WaitGroup
}

type worker struct {
	session *Session
	in      chan model.TelemetrySample
}

type ManagerOption func(m *Manager)

// WithSessionOptions are applied to every session created by the manager.
func WithSessionOptions(opts ...SessionOption) ManagerOption {
	return func(m *Manager) {
		m.sessionOpts = append(m.sessionOpts, opts...)
	}
}

func WithQueueSize(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

// WithLapCallback is called from the vehicle goroutines for every emitted lap.
func WithLapCallback(cb LapCallback) ManagerOption {
	return func(m *Manager) {
		m.onLap = cb
	}
}

// WithBindCallback is called when a session is bound to a track.
func WithBindCallback(cb BindCallback) ManagerOption {
	return func(m *Manager) {
		m.onBind = cb
	}
}

// WithStopCallback is called after a session was stopped by Close.
func WithStopCallback(cb StopCallback) ManagerOption {
	return func(m *Manager) {
		m.onStop = cb
	}
}

// WithErrorCallback is called for every rejected sample.
func WithErrorCallback(cb ErrorCallback) ManagerOption {
	return func(m *Manager) {
		m.onError = cb
	}
}

func WithManagerLogger(l *log.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = l
	}
}

func NewManager(catalog *track.Catalog, opts ...ManagerOption) *Manager {
	m := &Manager{
		queueSize: DefaultQueueSize,
		workers:   make(map[string]*worker),
		log:       log.Default().Named("manager"),
	}
	m.catalog.Store(catalog)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetCatalog replaces the catalog. Running sessions keep the catalog they were
// created with.
func (m *Manager) SetCatalog(c *track.Catalog) {
	m.catalog.Store(c)
	m.log.Info("catalog replaced", log.Int("tracks", c.Len()))
}

// Dispatch queues the sample for the vehicle. It blocks while the queue of the
// vehicle is full.
func (m *Manager) Dispatch(ctx context.Context, vehicle string, s *model.TelemetrySample) error {
	w, err := m.worker(vehicle)
	if err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrManagerClosed
	}
	select {
	case w.in <- *s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Vehicles returns the vehicles seen so far, sorted by name.
func (m *Manager) Vehicles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := lo.Keys(m.workers)
	slices.Sort(ret)
	return ret
}

// Close stops accepting samples, waits until all queued samples are processed
// and stops the sessions.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, w := range m.workers {
		close(w.in)
	}
	m.mu.Unlock()
	m.wg.Wait()
	m.log.Info("manager closed", log.Int("vehicles", len(m.workers)))
}

func (m *Manager) worker(vehicle string) (*worker, error) {
	m.mu.RLock()
	w, ok := m.workers[vehicle]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrManagerClosed
	}
	if ok {
		return w, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if w, ok := m.workers[vehicle]; ok {
		return w, nil
	}
	w = &worker{in: make(chan model.TelemetrySample, m.queueSize)}
	opts := append(slices.Clone(m.sessionOpts),
		WithVehicle(vehicle),
		WithLogger(m.log.Named("session")),
		WithLapHandler(func(l *model.LapRecord) {
			if m.onLap != nil {
				m.onLap(w.session, l)
			}
		}),
		WithBindHandler(func(geom *model.TrackGeometry) {
			if m.onBind != nil {
				m.onBind(w.session, geom)
			}
		}))
	w.session = NewSession(m.catalog.Load(), opts...)
	m.workers[vehicle] = w
	m.wg.Add(1)
	go m.run(vehicle, w)
	m.log.Debug("session created",
		log.String("vehicle", vehicle),
		log.String("session", w.session.ID().String()))
	return w, nil
}

func (m *Manager) run(vehicle string, w *worker) {
	defer m.wg.Done()
	for s := range w.in {
		if _, err := w.session.Ingest(&s); err != nil && m.onError != nil {
			m.onError(vehicle, err)
		}
	}
	w.session.Stop()
	if m.onStop != nil {
		m.onStop(w.session)
	}
}
