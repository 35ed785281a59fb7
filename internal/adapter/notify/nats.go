// Package notify publishes completed runs on NATS.
package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// DefaultSubjectPrefix prefixes every run subject.
const DefaultSubjectPrefix = "housecat.runs"

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher publishes run records to housecat.runs.<test_id>.<outcome>.
type Publisher struct {
	conn   Conn
	prefix string
}

// NewPublisher wraps an established connection.
func NewPublisher(conn Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// Connect dials url and returns a publisher plus a function closing the
// connection.
func Connect(url string) (*Publisher, func(), error) {
	nc, err := nats.Connect(url,
		nats.Name("housecat"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to connect to nats at %s", url)
	}
	closeFn := func() {
		_ = nc.Drain()
	}
	return NewPublisher(nc, DefaultSubjectPrefix), closeFn, nil
}

// Subject returns the subject a run is published on.
func (p *Publisher) Subject(run domain.RunRecord) string {
	outcome := "failed"
	if run.Passed {
		outcome = "passed"
	}
	return p.prefix + "." + subjectToken(run.TestID) + "." + outcome
}

// PublishRun publishes one run record as JSON.
func (p *Publisher) PublishRun(ctx context.Context, run domain.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(run)
	if err != nil {
		return errors.Wrap(err, "failed to encode run")
	}
	if err := p.conn.Publish(p.Subject(run), data); err != nil {
		return errors.Wrap(err, "failed to publish run")
	}
	return nil
}

// subjectToken makes a test id safe as one subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
