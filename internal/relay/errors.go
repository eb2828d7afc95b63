package relay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stealthpool/client-go/internal/apierrors"
)

// Relay error codes.
const (
	CodeNotVerified      = "not_verified"
	CodeAlreadyWithdrawn = "already_withdrawn"
	CodeUnauthorized     = "unauthorized"
	CodeRateLimited      = "rate_limited"
)

// Error is a refusal returned by the relay.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		return fmt.Sprintf("relay error: %d", e.StatusCode)
	}
	return fmt.Sprintf("relay error %d: %s", e.StatusCode, msg)
}

// StealthPoolError implements apierrors.StealthPoolError.
func (e *Error) StealthPoolError() {}

// Is implements errors.Is for sentinel error matching.
func (e *Error) Is(target error) bool {
	switch target {
	case apierrors.ErrNotVerified:
		return e.Code == CodeNotVerified
	case apierrors.ErrAlreadyWithdrawn:
		return e.Code == CodeAlreadyWithdrawn
	case apierrors.ErrUnauthorized:
		return e.Code == CodeUnauthorized || e.StatusCode == 401 || e.StatusCode == 403
	case apierrors.ErrRateLimited:
		return e.Code == CodeRateLimited || e.StatusCode == 429
	}
	return false
}

func parseErrorResponse(status int, body []byte) error {
	var errResp struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}

	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &Error{
			StatusCode: status,
			Code:       errResp.Error,
			Message:    errResp.Message,
			RequestID:  errResp.RequestID,
		}
	}

	return &Error{
		StatusCode: status,
		Message:    strings.TrimSpace(string(body)),
	}
}
