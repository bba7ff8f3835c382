package nats

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/model"
)

// LapSubscriber receives the lap events published by PublishLap.
type LapSubscriber struct {
	conn *nats.Conn
	log  *log.Logger
}

func NewLapSubscriber(conn *nats.Conn) *LapSubscriber {
	return &LapSubscriber{conn: conn, log: log.Default().Named("nats.laps")}
}

// Run forwards every lap event to out until ctx is done. out is not closed.
func (s *LapSubscriber) Run(ctx context.Context, out chan<- *model.LapEvent) error {
	sub, err := s.conn.Subscribe(LapSubjectPrefix+".*", func(msg *nats.Msg) {
		var ev model.LapEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil || ev.Lap == nil {
			s.log.Warn("invalid lap event", log.String("subject", msg.Subject))
			return
		}
		select {
		case out <- &ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	s.log.Info("listening for laps", log.String("subject", sub.Subject))
	<-ctx.Done()
	return sub.Unsubscribe()
}
