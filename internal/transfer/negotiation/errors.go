package negotiation

import (
	"errors"
	"fmt"

	"shopkeep.ai/internal/protocol"
	"shopkeep.ai/internal/transfer/model"
)

var (
	ErrUnknownIdentity      = errors.New("unknown identity")
	ErrSelfTransfer         = model.ErrSelfTransfer
	ErrRecipientUnreachable = errors.New("recipient unreachable")
	ErrNoPendingOperation   = errors.New("no pending operation")
	ErrPermissionDenied     = errors.New("permission denied")

	// ErrNotFound is returned by a Directory for names it cannot resolve.
	ErrNotFound = errors.New("not found")
)

const (
	SideRecipient = "recipient"
	SideFrom      = "from"
	SideTo        = "to"
)

// IdentityError names the side whose identity could not be used. It matches
// ErrUnknownIdentity with errors.Is; Unwrap exposes the underlying cause.
type IdentityError struct {
	Side string
	Name string
	Err  error
}

func (e *IdentityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unknown identity %s=%q: %v", e.Side, e.Name, e.Err)
	}
	return fmt.Sprintf("unknown identity %s=%q", e.Side, e.Name)
}

func (e *IdentityError) Is(target error) bool { return target == ErrUnknownIdentity }

func (e *IdentityError) Unwrap() error { return e.Err }

// Code maps an outcome error to its protocol error code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownIdentity):
		return protocol.ErrUnknownIdentity
	case errors.Is(err, ErrSelfTransfer):
		return protocol.ErrSelfTransfer
	case errors.Is(err, ErrRecipientUnreachable):
		return protocol.ErrUnreachable
	case errors.Is(err, ErrNoPendingOperation):
		return protocol.ErrNoPending
	case errors.Is(err, ErrPermissionDenied):
		return protocol.ErrNoPermission
	default:
		return protocol.ErrInternal
	}
}
