package embedded

import (
	"github.com/2beens/fittrack/internal/docstore"
)

// Messages are single JSON objects; one request and one response per connection.

type request struct {
	Op         string              `json:"op"`
	Collection string              `json:"collection,omitempty"`
	Query      docstore.Query      `json:"query,omitempty"`
	Doc        docstore.Document   `json:"doc,omitempty"`
	Docs       []docstore.Document `json:"docs,omitempty"`
	Patch      docstore.Document   `json:"patch,omitempty"`
	Multi      bool                `json:"multi,omitempty"`
	Mode       docstore.UpdateMode `json:"mode,omitempty"`
}

type response struct {
	Docs  []docstore.Document `json:"docs,omitempty"`
	Doc   docstore.Document   `json:"doc,omitempty"`
	Count int                 `json:"count"`
	Code  string              `json:"code,omitempty"`
	Error string              `json:"error,omitempty"`
}

func errorResponse(err error) response {
	return response{
		Code:  docstore.ErrorCode(err),
		Error: err.Error(),
	}
}
