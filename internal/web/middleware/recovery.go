package middleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/conduit-lang/docrud/internal/web/response"
)

// Recovery recovers from panics in later handlers, logs them with the stack
// and answers 500
func Recovery(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.String("request_id", GetRequestID(r.Context())),
						zap.String("path", r.URL.Path),
						zap.Any("panic", rec),
						zap.Stack("stack"),
					)
					response.RenderErrorWithStatus(w, http.StatusInternalServerError,
						errors.New("an unexpected error occurred"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
