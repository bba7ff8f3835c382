package nats

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/model"
)

// SampleHandler receives the decoded samples in arrival order.
type SampleHandler func(ctx context.Context, vehicle string, s *model.TelemetrySample)

type Source struct {
	conn    *nats.Conn
	subject string
	log     *log.Logger
}

type SourceOption func(s *Source)

// WithSubject overrides the subscription subject, default is telemetry.*
func WithSubject(subject string) SourceOption {
	return func(s *Source) {
		s.subject = subject
	}
}

func WithSourceLogger(l *log.Logger) SourceOption {
	return func(s *Source) {
		s.log = l
	}
}

func NewSource(conn *nats.Conn, opts ...SourceOption) *Source {
	ret := &Source{
		conn:    conn,
		subject: TelemetrySubjectPrefix + ".*",
		log:     log.Default().Named("nats.source"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Run subscribes and calls handler for every sample until ctx is done.
// Messages are delivered sequentially, so samples of one vehicle keep their order.
func (s *Source) Run(ctx context.Context, handler SampleHandler) error {
	msgs := make(chan *nats.Msg, 1024)
	sub, err := s.conn.ChanSubscribe(s.subject, msgs)
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			s.log.Warn("unsubscribe", log.ErrorField(err))
		}
	}()
	s.log.Info("listening for telemetry", log.String("subject", s.subject))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			sample, err := DecodeSample(msg.Data)
			if err != nil {
				s.log.Warn("invalid sample",
					log.String("subject", msg.Subject),
					log.ErrorField(err))
				continue
			}
			handler(ctx, VehicleFromSubject(msg.Subject), sample)
		}
	}
}

func DecodeSample(data []byte) (*model.TelemetrySample, error) {
	var ret model.TelemetrySample
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}
