package idempotency

import (
	"context"
	"log/slog"
	"net/http"
)

const HeaderKey = "Idempotency-Key"

type Checker interface {
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// HTTP rejects a repeated Idempotency-Key with 409. Requests without the header
// pass through. A request that ends in a 5xx frees its key again.
func HTTP(log *slog.Logger, checker Checker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" || checker == nil {
				next.ServeHTTP(w, r)
				return
			}

			storeKey := "idem:http:" + r.Method + ":" + r.URL.Path + ":" + key
			seen, err := checker.Seen(r.Context(), storeKey)
			if err != nil {
				log.Error("idempotency check failed", "key", key, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if seen {
				log.Info("duplicate request rejected", "key", key, "path", r.URL.Path)
				http.Error(w, "duplicate request", http.StatusConflict)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusInternalServerError {
				if err := checker.Forget(context.WithoutCancel(r.Context()), storeKey); err != nil {
					log.Error("idempotency forget failed", "key", key, "err", err)
				}
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
