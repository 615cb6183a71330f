package mail

import "context"

// Message is one outbound email. From may be empty, in which case the
// mailer falls back to its configured default sender. Kind labels the
// message for metrics ("invite", "welcome", "reset").
type Message struct {
	To      string
	Subject string
	Body    string
	From    string
	Kind    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// WithMetrics decorates a Mailer so every send attempt is counted by
// kind and outcome.
func WithMetrics(inner Mailer, observe func(kind string, err error)) Mailer {
	return &metricsMailer{inner: inner, observe: observe}
}

type metricsMailer struct {
	inner   Mailer
	observe func(kind string, err error)
}

func (m *metricsMailer) Send(ctx context.Context, msg Message) error {
	err := m.inner.Send(ctx, msg)

	kind := msg.Kind
	if kind == "" {
		kind = "other"
	}
	m.observe(kind, err)

	return err
}
