package application

import (
	"context"
	"errors"
)

// ErrSourceClosed is returned by Source.Next once the source has stopped.
var ErrSourceClosed = errors.New("source closed")

// Request is one utterance waiting to be interpreted. Text is empty when the
// request still needs transcription.
type Request struct {
	ID     string
	Text   string
	Audio  []byte
	UserID string
	Origin string
}

type Source interface {
	Start(ctx context.Context) error
	Stop() error
	Next(ctx context.Context) (Request, error)
	Name() string
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
