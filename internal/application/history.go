package application

import (
	"context"

	"home-voice/internal/domain"
)

// ResultRecorder keeps a history of dispatched commands. Record must not
// block the request loop.
type ResultRecorder interface {
	Record(ctx context.Context, req Request, results []domain.CommandResult)
}
