package ai

import (
	"context"
	"errors"
)

// ErrEmptyResponse reports that the provider answered successfully but the
// response carried no text. Callers should treat the evaluation as received
// rather than failed.
var ErrEmptyResponse = errors.New("provider returned an empty response")

// Generator produces a textual completion for a prompt. Implementations own
// transport concerns such as retries and rate-limit handling.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}
