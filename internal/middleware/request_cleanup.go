package middleware

import (
	"io"
	"net/http"
)

// maxDrainBytes bounds how much of an unread command body is discarded
// before giving up on connection reuse.
const maxDrainBytes = 256 << 10

// DrainAndCloseRequest discards what the command handler left unread in the body.
func DrainAndCloseRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if r.Body == nil {
				return
			}
			_, _ = io.CopyN(io.Discard, r.Body, maxDrainBytes)
			_ = r.Body.Close()
		})
	}
}
