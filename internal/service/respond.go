package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/arashthr/memex/internal/auth/context/loggercontext"
	"github.com/arashthr/memex/internal/errors"
	"github.com/arashthr/memex/internal/metrics"
	"github.com/arashthr/memex/internal/wire"
)

type outcomeKey struct{}

// instrument records the count and latency of one operation. Handlers mark
// the outcome through rejected and serverError.
func instrument(operation string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		outcome := metrics.OutcomeOK
		ctx := context.WithValue(r.Context(), outcomeKey{}, &outcome)

		h(w, r.WithContext(ctx))

		metrics.APIRequests.WithLabelValues(operation, outcome).Inc()
		metrics.APIDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func setOutcome(ctx context.Context, outcome string) {
	if p, ok := ctx.Value(outcomeKey{}).(*string); ok {
		*p = outcome
	}
}

// render buffers the document so a codec failure can still become a 500.
func render(w http.ResponseWriter, r *http.Request, fn func(io.Writer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", wire.ContentType)
	if _, err := w.Write(buf.Bytes()); err != nil {
		loggercontext.Logger(r.Context()).Errorw("write response", "error", err)
	}
}

// rejected answers a client mistake with the generic error result. The
// protocol reports these with status 200.
func rejected(w http.ResponseWriter, r *http.Request, err error) {
	setOutcome(r.Context(), metrics.OutcomeRejected)
	loggercontext.Logger(r.Context()).Infow("request rejected",
		"reason", errors.PublicMessage(err, err.Error()))
	render(w, r, func(out io.Writer) error {
		return wire.WriteResult(out, wire.SomethingWentWrong)
	})
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	setOutcome(r.Context(), metrics.OutcomeError)
	loggercontext.Logger(r.Context()).Errorw("request failed", "error", err)
	w.Header().Set("Content-Type", wire.ContentType)
	w.WriteHeader(http.StatusInternalServerError)
	wire.WriteResult(w, wire.SomethingWentWrong)
}
