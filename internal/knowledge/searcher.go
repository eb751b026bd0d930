package knowledge

import (
	"context"
	stderrors "errors"
	"net"

	"trialist-agent/internal/common/errors"
)

const (
	ServiceName = "knowledge"

	conciseResults  = 3
	detailedResults = 5
)

type Query struct {
	Text     string
	Category string
	Detailed bool
}

func (q Query) pageSize() int {
	if q.Detailed {
		return detailedResults
	}
	return conciseResults
}

type Hit struct {
	Title       string
	Description string
	Snippet     string
	Highlights  []string
}

type Result struct {
	Hits         []Hit
	TotalResults int
	RequestID    string
}

// Searcher looks up help content. Implementations return StandardErrors so
// the guard can classify failures.
type Searcher interface {
	Search(ctx context.Context, q Query) (*Result, error)
}

// statusError maps a collaborator HTTP status onto the error taxonomy.
func statusError(status int, body string) error {
	switch {
	case status == 400:
		return errors.NewBadRequestError(ServiceName, body)
	case status == 401 || status == 403:
		return errors.NewAuthenticationError(ServiceName, status)
	case status == 404:
		return errors.NewNotFoundError(ServiceName, body)
	default:
		return errors.NewServiceUnavailableError(ServiceName, status)
	}
}

// transportError classifies a failure that happened before any status line.
func transportError(ctx context.Context, err error) error {
	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded ||
		(stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.NewTimeoutError(ServiceName, err)
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	return errors.NewConnectionFailedError(ServiceName, err)
}
