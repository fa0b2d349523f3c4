package stratum

// Status is the enumerated result of a facade-level operation. It is a
// distinct int type implementing error, so callers can branch on the
// exact enumerated value or hand it to anything expecting an error:
// `if status != stratum.OK { ... }` reads the same whichever way you
// call it.
type Status int

const (
	OK Status = iota
	OKNotFound
	OKDestroyAll
	WarnNotExist
	WarnStorageNotExist
	WarnUniqueRestriction
	WarnMaxSessions
	WarnInvalidToken
	ErrBadUsage
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case OKNotFound:
		return "OK_NOT_FOUND"
	case OKDestroyAll:
		return "OK_DESTROY_ALL"
	case WarnNotExist:
		return "WARN_NOT_EXIST"
	case WarnStorageNotExist:
		return "WARN_STORAGE_NOT_EXIST"
	case WarnUniqueRestriction:
		return "WARN_UNIQUE_RESTRICTION"
	case WarnMaxSessions:
		return "WARN_MAX_SESSIONS"
	case WarnInvalidToken:
		return "WARN_INVALID_TOKEN"
	case ErrBadUsage:
		return "ERR_BAD_USAGE"
	default:
		return "UNKNOWN_STATUS"
	}
}

// Error satisfies the error interface so a Status can be returned and
// compared anywhere Go code expects an error, without losing the ability
// to switch on the exact enumerated value.
func (s Status) Error() string { return s.String() }

// IsOK reports whether s is one of the non-error "OK"-family results.
func (s Status) IsOK() bool {
	return s == OK || s == OKNotFound || s == OKDestroyAll
}
