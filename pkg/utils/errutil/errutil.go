// Package errutil reports errors that cannot be returned to a caller.
package errutil

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/utils/logging"
)

var sentryEnabled atomic.Bool

// EnableSentry makes Handle forward errors to Sentry. sentry.Init must have
// succeeded before.
func EnableSentry() {
	sentryEnabled.Store(true)
}

// DisableSentry stops forwarding to Sentry
func DisableSentry() {
	sentryEnabled.Store(false)
}

// Handle logs err with its goerr values and stack, and reports it to Sentry
// when enabled.
func Handle(ctx context.Context, err error, msg string) {
	if err == nil {
		return
	}

	logger := logging.From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error(msg,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error(msg, "error", err.Error())
	}

	report(err, msg, ge)
}

func report(err error, msg string, ge *goerr.Error) {
	if !sentryEnabled.Load() {
		return
	}

	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("message", msg)
		if ge != nil {
			values := sentry.Context{}
			for k, v := range ge.Values() {
				values[k] = v
			}
			scope.SetContext("values", values)
		}
		hub.CaptureException(err)
	})
}

// HandleHTTP logs the error and writes an HTTP error response. Messages of
// 5xx responses are replaced by the status text.
func HandleHTTP(ctx context.Context, w http.ResponseWriter, err error, statusCode int) {
	if err == nil {
		return
	}

	if statusCode >= http.StatusInternalServerError {
		Handle(ctx, err, "HTTP error")
		http.Error(w, http.StatusText(statusCode), statusCode)
		return
	}

	logging.From(ctx).Warn("HTTP client error",
		"status", statusCode,
		"error", err.Error(),
	)
	http.Error(w, err.Error(), statusCode)
}
