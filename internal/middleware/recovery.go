package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/handler"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/metrics"
)

// Recovery turns a handler panic into a 500. When the response has already
// started, as with a status stream, only the log line and metric are
// emitted. http.ErrAbortHandler is passed through to the server.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(v)
			}

			metrics.HTTPPanicsTotal.Inc()
			log := logging.FromContext(r.Context())
			log.Error("panic recovered",
				"error", v,
				"method", r.Method,
				"path", r.URL.Path,
				"response_started", rec.wroteHeader,
				"stack", string(debug.Stack()),
			)
			if !rec.wroteHeader {
				handler.RespondAppError(w, handler.ErrInternalError, nil)
			}
		}()
		next.ServeHTTP(rec, r)
	})
}
