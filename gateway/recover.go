package gateway

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/atlas/shield/meta"
)

// Recover wraps next with panic recovery so a single bad request can't
// take the whole process down. Middleware already fails open on a
// panic inside its own decision logic; Recover is the outer safety net
// for everything else on the mux (metrics, health) where a 500 is the
// correct response to an unexpected panic.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				reqID, _ := meta.Get[string](r.Context(), "req_id")
				log.Error().
					Interface("panic", rec).
					Str("req_id", reqID).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
