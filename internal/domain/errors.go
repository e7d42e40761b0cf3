package domain

import "errors"

var (
	// ErrStopProcessing is returned (or wrapped) by a plugin to abort the whole federated query.
	ErrStopProcessing = errors.New("stop processing")
	// ErrProcessingAborted signals that a plugin stopped a federated query.
	ErrProcessingAborted = errors.New("processing aborted")
	// ErrInvalidConfig signals a rejected configuration value.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidQuery signals malformed query parameters.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrUnknownSource signals a source ID that is not registered.
	ErrUnknownSource = errors.New("unknown source")
	// ErrSourceUnavailable signals a source that cannot be reached.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrUnsupportedQuery signals a query a source cannot execute.
	ErrUnsupportedQuery = errors.New("unsupported query")
	// ErrStreamClosed signals a write to a closed result stream.
	ErrStreamClosed = errors.New("result stream closed")
)
