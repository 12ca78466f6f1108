package processmonitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/eventsource"
	"github.com/kubescape/process-monitor/pkg/processmonitor"
	"go.uber.org/multierr"
)

// Subscription is one live connection with one registered filter. It is owned by a single
// goroutine and is discarded as a whole when anything about it fails.
type Subscription struct {
	id     string
	source string
	conn   eventsource.Connection
	stream eventsource.Stream
}

func connect(ctx context.Context, connector eventsource.Connector) (eventsource.Connection, error) {
	conn, err := connector.Connect(ctx)
	if err != nil {
		return nil, &processmonitor.ConnectionError{Op: processmonitor.OpConnect, Err: err}
	}
	logger.L().Info("connection established", helpers.String("source", connector.Name()))
	return conn, nil
}

// newSubscription registers the process creation filter on conn. The subscription takes
// ownership of conn, which is closed if registration fails.
func newSubscription(source string, conn eventsource.Connection) (*Subscription, error) {
	filter := eventsource.ProcessCreationFilter()
	stream, err := conn.Subscribe(filter)
	if err != nil {
		return nil, multierr.Append(
			&processmonitor.ConnectionError{Op: processmonitor.OpSubscribe, Err: err},
			conn.Close(),
		)
	}
	s := &Subscription{
		id:     uuid.NewString(),
		source: source,
		conn:   conn,
		stream: stream,
	}
	logger.L().Info("subscription registered",
		helpers.String("source", source),
		helpers.String("session", s.id),
		helpers.String("eventClass", filter.EventClass),
		helpers.String("targetClass", filter.TargetClass))
	return s, nil
}

func (s *Subscription) ID() string {
	return s.id
}

// pull returns one batch, waiting at most wait for the first event.
func (s *Subscription) pull(ctx context.Context, wait time.Duration) ([]eventsource.Result, error) {
	results, err := s.stream.Next(ctx, wait)
	if err != nil {
		return nil, &processmonitor.ConnectionError{Op: processmonitor.OpPull, Err: err}
	}
	return results, nil
}

func (s *Subscription) Close() error {
	err := multierr.Combine(s.stream.Close(), s.conn.Close())
	logger.L().Debug("subscription closed", helpers.String("session", s.id))
	return err
}
