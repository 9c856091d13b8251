package model

// Error types
type Error string

const (
	ErrNotFound           Error = "IP not found"
	ErrInvalidIP          Error = "invalid IP address"
	ErrUnknownBackend     Error = "unknown backend"
	ErrBackendUnavailable Error = "backend unavailable"
	ErrInvalidCondition   Error = "invalid condition"
	ErrInvalidConfig      Error = "invalid configuration"
	ErrDatabaseClosed     Error = "database is closed"
	ErrOverlap            Error = "overlapping range detected"
	ErrInvalidRange       Error = "invalid IP range"
)

func (e Error) Error() string {
	return string(e)
}
