package bridge

import (
	"net/http"

	"github.com/2beens/fittrack/internal/docstore"
)

// Bridge commands, one per store capability.
const (
	CommandPing            = "ping"
	CommandFind            = "nedb_find"
	CommandInsert          = "nedb_insert"
	CommandUpdate          = "nedb_update"
	CommandRemove          = "nedb_remove"
	CommandClearCollection = "nedb_clear_collection"
	CommandBulkInsert      = "nedb_bulk_insert"
)

var commandOps = map[string]string{
	CommandPing:            docstore.OpPing,
	CommandFind:            docstore.OpFind,
	CommandInsert:          docstore.OpInsert,
	CommandUpdate:          docstore.OpUpdate,
	CommandRemove:          docstore.OpRemove,
	CommandClearCollection: docstore.OpClearCollection,
	CommandBulkInsert:      docstore.OpBulkInsert,
}

// commandArgs is the JSON body of every command. On success the response
// body is the bare result: a document list, a document, or a count.
type commandArgs struct {
	Collection string                 `json:"collection,omitempty"`
	Query      docstore.Query         `json:"query,omitempty"`
	Doc        docstore.Document      `json:"doc,omitempty"`
	Docs       []docstore.Document    `json:"docs,omitempty"`
	Update     docstore.Document      `json:"update,omitempty"`
	Options    docstore.UpdateOptions `json:"options"`
}

type commandError struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func statusForCode(code string) int {
	switch code {
	case docstore.CodeCollectionNotFound, docstore.CodeNotFound:
		return http.StatusNotFound
	case docstore.CodeBadRequest:
		return http.StatusBadRequest
	case docstore.CodeDuplicateID:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
