package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

func LogRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			begin := time.Now()
			next.ServeHTTP(w, r)
			log.WithFields(log.Fields{
				"command": mux.Vars(r)["command"],
				"method":  r.Method,
				"remote":  r.RemoteAddr,
				"took":    time.Since(begin),
			}).Trace("bridge request handled")
		})
	}
}
