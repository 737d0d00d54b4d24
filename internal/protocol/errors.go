package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command layer.
	ErrBadRequest = "E_BAD_REQUEST"

	// Negotiation outcomes.
	ErrUnknownIdentity = "E_UNKNOWN_IDENTITY"
	ErrSelfTransfer    = "E_SELF_TRANSFER"
	ErrUnreachable     = "E_UNREACHABLE"
	ErrNoPending       = "E_NO_PENDING"
	ErrNoPermission    = "E_NO_PERMISSION"
	ErrInternal        = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrUnknownIdentity: {},
	ErrSelfTransfer:    {},
	ErrUnreachable:     {},
	ErrNoPending:       {},
	ErrNoPermission:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
