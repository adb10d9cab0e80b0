package services

import (
	"errors"
	"fmt"

	"github.com/soochol/chatflow/internal/validator"
)

// ErrInvalidInput marks a request rejected before touching storage.
var ErrInvalidInput = errors.New("invalid input")

// PublishError is returned when a flow cannot be published. It carries the
// error-level validation issues; nothing was changed.
type PublishError struct {
	FlowID string
	Issues []validator.Issue
}

func (e *PublishError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("publish %s refused", e.FlowID)
	}
	return fmt.Sprintf("publish %s refused: %d error(s), first: %s", e.FlowID, len(e.Issues), e.Issues[0].Message)
}

// AsPublishError unwraps err into a *PublishError.
func AsPublishError(err error) (*PublishError, bool) {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
