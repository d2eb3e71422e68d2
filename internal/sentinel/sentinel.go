package sentinel

var _ error = Error("")

// Error is a constant-friendly error value.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }
