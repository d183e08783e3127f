package notify

import (
	"context"
	"encoding/json"
	"time"

	"copytrade/internal/logger"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const pingInterval = 90 * time.Second

// Source is the part of *pq.Listener the feed consumes.
type Source interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
}

// Listen opens a dedicated LISTEN connection on channel.
func Listen(databaseURL, channel string) (*pq.Listener, error) {
	listener := pq.NewListener(databaseURL, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		entry := logger.Log.WithField("channel", channel)
		if err != nil {
			entry = entry.WithError(err)
		}
		switch ev {
		case pq.ListenerEventConnected:
			entry.Info("change feed connected")
		case pq.ListenerEventDisconnected:
			entry.Warn("change feed disconnected")
		case pq.ListenerEventReconnected:
			entry.Info("change feed reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			entry.Warn("change feed connection attempt failed")
		}
	})
	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, err
	}
	return listener, nil
}

// Run publishes every notification from src until ctx is done or the source
// channel closes. A nil notification marks a reconnect; events raised while
// disconnected are lost and consumers recover on their next read.
func (f *Feed) Run(ctx context.Context, src Source) error {
	notifications := src.NotificationChannel()
	idle := time.NewTimer(pingInterval)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(pingInterval)
			if n == nil {
				logger.Log.Warn("change feed reconnected, events during the gap were not delivered")
				continue
			}
			var change Change
			if err := json.Unmarshal([]byte(n.Extra), &change); err != nil {
				logger.Log.WithFields(logrus.Fields{
					"channel": n.Channel,
					"error":   err.Error(),
				}).Warn("undecodable change notification")
				continue
			}
			f.Publish(change)
		case <-idle.C:
			go func() {
				if err := src.Ping(); err != nil {
					logger.Log.WithError(err).Warn("change feed ping failed")
				}
			}()
			idle.Reset(pingInterval)
		}
	}
}
