package application

import (
	"context"
	"errors"
)

var ErrSpeechUnavailable = errors.New("speech-to-text not configured")

type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// NoopSTT rejects audio. Text requests never reach it.
type NoopSTT struct{}

func (n *NoopSTT) Transcribe(_ context.Context, _ []byte) (string, error) {
	return "", ErrSpeechUnavailable
}
