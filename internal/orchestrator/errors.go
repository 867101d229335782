package orchestrator

// Kind discriminates the orchestrator's error categories so callers
// (the HTTP layer) can map them to the right status code and
// user-facing message without parsing error strings.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindCatalogAbsent Kind = "catalog_absent"
)

// Error wraps an orchestration failure with its Kind, so the HTTP
// layer can render the right status/message without string-matching.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newConfigError(message string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Err: err}
}

func newCatalogAbsentError(err error) *Error {
	return &Error{
		Kind:    KindCatalogAbsent,
		Message: "no usable catalog for the requested connections; run a scan first",
		Err:     err,
	}
}
