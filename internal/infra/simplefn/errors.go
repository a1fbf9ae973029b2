package simplefn

import (
	"errors"
	"fmt"

	"home-voice/internal/application"
)

var ErrInvalidArgument = errors.New("simplefn: invalid argument")

// FunctionNotFoundError is returned by Call for names that are not
// registered. It matches application.ErrFunctionNotFound.
type FunctionNotFoundError struct {
	Name string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("no simple function named %s", e.Name)
}

func (e *FunctionNotFoundError) Is(target error) bool {
	return target == application.ErrFunctionNotFound
}

// httpStatusError is a non-200 reply from a web service.
type httpStatusError struct {
	URL        string
	StatusCode int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}
