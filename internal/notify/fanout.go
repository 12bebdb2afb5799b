package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"datapulse/internal/domain"
)

// Broadcaster pushes a serialized message to live subscribers.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// PointMessage is the wire form of a data point for subscribers and API clients.
type PointMessage struct {
	ID    int64   `json:"id"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Date  string  `json:"date"`
}

// NewPointMessage converts a stored point to its wire form.
func NewPointMessage(p domain.DataPoint) PointMessage {
	return PointMessage{
		ID:    p.ID,
		Label: p.Label,
		Value: p.Value,
		Date:  p.Date.UTC().Format(time.RFC3339Nano),
	}
}

// Fanout broadcasts each created point and sends one email about it. The
// broadcaster must not block; mail goes through the dispatcher so the creating
// request never waits on the relay.
type Fanout struct {
	dispatcher  *Dispatcher
	broadcaster Broadcaster
	mailer      Mailer
	log         *logrus.Entry
}

func NewFanout(dispatcher *Dispatcher, broadcaster Broadcaster, mailer Mailer, logger *logrus.Logger) *Fanout {
	if mailer == nil {
		mailer = NopMailer{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Fanout{
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		mailer:      mailer,
		log:         logger.WithField("component", "fanout"),
	}
}

// PointCreated implements service.Notifier.
func (f *Fanout) PointCreated(point domain.DataPoint) {
	payload, err := json.Marshal(NewPointMessage(point))
	if err != nil {
		f.log.Errorf("encode point %d: %v", point.ID, err)
		return
	}

	if f.broadcaster != nil {
		f.broadcaster.Broadcast(payload)
	}

	subject, body := pointEmail(point)
	f.dispatcher.Submit("email", func(ctx context.Context) error {
		return f.mailer.Send(ctx, subject, body)
	})
}

func pointEmail(p domain.DataPoint) (string, string) {
	subject := fmt.Sprintf("New data point: %s", p.Label)
	body := fmt.Sprintf("A new data point was added.\n\nLabel: %s\nValue: %g\nDate: %s\n",
		p.Label, p.Value, p.Date.UTC().Format("2006-01-02"))
	return subject, body
}
