package model

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrConfiguration is fatal and must not be retried, e.g. a node without a unique key.
	ErrConfiguration = goerr.New("configuration error")

	// ErrStorageWriteFailed means a transaction was aborted without partial state. Retryable.
	ErrStorageWriteFailed = goerr.New("storage write failed")

	// ErrEmbeddingUnavailable means the embedder could not produce a usable vector.
	ErrEmbeddingUnavailable = goerr.New("embedding unavailable")

	ErrChainConflict           = goerr.New("event already belongs to another chain")
	ErrNodeNotFound            = goerr.New("node not found")
	ErrClarificationAlreadySet = goerr.New("clarification already set")
	ErrInvalidInput            = goerr.New("invalid input")
)

// StorageWriteFailed wraps cause so that errors.Is matches both cause and ErrStorageWriteFailed.
func StorageWriteFailed(cause error, msg string, opts ...goerr.Option) error {
	return goerr.Wrap(errors.Join(ErrStorageWriteFailed, cause), msg, opts...)
}

// IsRetryable reports whether the caller may retry the failed operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageWriteFailed)
}
