package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Entry is one state change worth keeping an external trail of.
type Entry struct {
	Action     string                 `json:"action"`
	ActorID    string                 `json:"actor_id"`
	Resource   string                 `json:"resource"`
	ResourceID string                 `json:"resource_id"`
	From       string                 `json:"from,omitempty"`
	To         string                 `json:"to,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// LogSink writes entries to the structured log.
type LogSink struct {
	Logger logrus.FieldLogger
}

func NewLogSink(logger logrus.FieldLogger) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{Logger: logger}
}

func (s *LogSink) Record(ctx context.Context, e Entry) error {
	fields := logrus.Fields{
		"audit":       e.Action,
		"actor_id":    e.ActorID,
		"resource":    e.Resource,
		"resource_id": e.ResourceID,
	}
	if e.From != "" || e.To != "" {
		fields["from"] = e.From
		fields["to"] = e.To
	}
	for k, v := range e.Details {
		fields[k] = v
	}
	s.Logger.WithFields(fields).Info("audit")
	return nil
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes entries as JSON on <prefix>.<action>.
type NATSSink struct {
	conn   publisher
	prefix string
}

func NewNATSSink(nc *nats.Conn, prefix string) *NATSSink {
	return &NATSSink{conn: nc, prefix: prefix}
}

func (s *NATSSink) Record(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%s", s.prefix, e.Action)
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// MultiSink fans out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Connect dials NATS when url is set; an empty url disables the NATS sink.
func Connect(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	return nats.Connect(url,
		nats.Name("growvia-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logrus.WithError(err).Warn("NATS disconnected")
			}
		}),
	)
}

// NewSink builds the process audit sink: always the log, mirrored to NATS
// when url is set. The returned func drains the NATS connection.
func NewSink(url, prefix string) (Sink, func(), error) {
	var sink Sink = NewLogSink(nil)
	nc, err := Connect(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	if nc == nil {
		return sink, func() {}, nil
	}
	closeFn := func() {
		if err := nc.Drain(); err != nil {
			logrus.WithError(err).Warn("NATS drain failed")
		}
	}
	return MultiSink{sink, NewNATSSink(nc, prefix)}, closeFn, nil
}
