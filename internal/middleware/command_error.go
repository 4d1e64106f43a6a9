package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/pkg"
)

// writeCommandError answers in the bridge error shape, which the bridge
// client maps to docstore.ErrBackendUnavailable.
func writeCommandError(w http.ResponseWriter, statusCode int, message string) {
	body, _ := json.Marshal(struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}{
		Code:  docstore.CodeInternal,
		Error: message,
	})
	pkg.WriteJSONResponse(w, statusCode, body)
}
