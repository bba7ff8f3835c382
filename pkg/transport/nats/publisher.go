package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/model"
)

var ErrAnalysisNotFound = errors.New("analysis not found")

type Publisher struct {
	conn   *nats.Conn
	kv     jetstream.KeyValue
	bucket string
	log    *log.Logger
}

type PublisherOption func(p *Publisher)

func WithAnalysisBucket(name string) PublisherOption {
	return func(p *Publisher) {
		p.bucket = name
	}
}

func WithPublisherLogger(l *log.Logger) PublisherOption {
	return func(p *Publisher) {
		p.log = l
	}
}

// NewPublisher creates the analysis bucket if needed.
func NewPublisher(ctx context.Context, conn *nats.Conn, opts ...PublisherOption) (*Publisher, error) {
	ret := &Publisher{
		conn:   conn,
		bucket: DefaultAnalysisBucket,
		log:    log.Default().Named("nats.publisher"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, err
	}
	ret.kv, err = js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      ret.bucket,
		Description: "latest track analysis per vehicle",
	})
	if err != nil {
		return nil, fmt.Errorf("create analysis bucket: %w", err)
	}
	return ret, nil
}

// PublishLap sends the lap event to laps.<vehicle>.
func (p *Publisher) PublishLap(ev *model.LapEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	subject := LapSubject(ev.Vehicle)
	p.log.Debug("publishing lap",
		log.String("subject", subject),
		log.Int("lap", ev.Lap.LapNumber))
	return p.conn.Publish(subject, data)
}

// StoreAnalysis replaces the latest analysis of vehicle.
//
//nolint:whitespace // can't make the linters happy
func (p *Publisher) StoreAnalysis(
	ctx context.Context,
	vehicle string,
	ta *model.TrackAnalysis,
) error {
	data, err := json.Marshal(ta)
	if err != nil {
		return err
	}
	_, err = p.kv.Put(ctx, AnalysisKey(ta.TrackID, vehicle), data)
	return err
}

//nolint:whitespace // can't make the linters happy
func (p *Publisher) LoadAnalysis(
	ctx context.Context,
	trackID model.TrackID,
	vehicle string,
) (*model.TrackAnalysis, error) {
	kve, err := p.kv.Get(ctx, AnalysisKey(trackID, vehicle))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrAnalysisNotFound
		}
		return nil, err
	}
	var ret model.TrackAnalysis
	if err := json.Unmarshal(kve.Value(), &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}
