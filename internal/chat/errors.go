package chat

import "errors"

// Request-level failure taxonomy. Everything here can only be surfaced
// before the first streamed byte; once streaming starts, failures end the
// stream without a completion frame instead.
var (
	ErrBadRequest           = errors.New("malformed chat request")
	ErrUnauthorized         = errors.New("no authenticated caller")
	ErrNotFound             = errors.New("document not found")
	ErrNotReady             = errors.New("document is still processing")
	ErrRetrievalUnavailable = errors.New("retrieval backend unavailable")
	ErrGenerationFailed     = errors.New("model generation failed")
	ErrPersistenceFailed    = errors.New("turn persistence failed")
	ErrInternal             = errors.New("internal error")
)
