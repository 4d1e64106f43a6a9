package embedded

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/2beens/fittrack/internal/docstore"
)

// Client implements docstore.Store by exchanging one message with the host per call.
// Calls carry no timeout of their own, only the deadline of ctx.
type Client struct {
	socketPath string
	dialer     net.Dialer
}

func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
	}
}

func (c *Client) Name() string {
	return "embedded"
}

func (c *Client) call(ctx context.Context, req request) (response, error) {
	conn, err := c.dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return response{}, fmt.Errorf("%w: dial %s: %s", docstore.ErrBackendUnavailable, c.socketPath, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return response{}, fmt.Errorf("%w: %s", docstore.ErrBackendUnavailable, err)
		}
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return response{}, fmt.Errorf("%w: send request: %s", docstore.ErrBackendUnavailable, err)
	}

	var resp response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return response{}, fmt.Errorf("%w: read response: %s", docstore.ErrBackendUnavailable, err)
	}
	if resp.Code != "" {
		return resp, docstore.ErrorFromCode(resp.Code, resp.Error)
	}
	return resp, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, request{Op: docstore.OpPing})
	return err
}

func (c *Client) Find(ctx context.Context, collection string, query docstore.Query) ([]docstore.Document, error) {
	if err := docstore.CheckCollection(docstore.OpFind, collection); err != nil {
		return nil, err
	}
	resp, err := c.call(ctx, request{
		Op:         docstore.OpFind,
		Collection: collection,
		Query:      query,
	})
	if err != nil {
		return nil, docstore.WrapOpError(docstore.OpFind, collection, err)
	}
	if resp.Docs == nil {
		return []docstore.Document{}, nil
	}
	return resp.Docs, nil
}

func (c *Client) Insert(ctx context.Context, collection string, doc docstore.Document) (docstore.Document, error) {
	if err := docstore.CheckCollection(docstore.OpInsert, collection); err != nil {
		return nil, err
	}
	resp, err := c.call(ctx, request{
		Op:         docstore.OpInsert,
		Collection: collection,
		Doc:        doc,
	})
	if err != nil {
		return nil, docstore.WrapOpError(docstore.OpInsert, collection, err)
	}
	return resp.Doc, nil
}

func (c *Client) Update(ctx context.Context, collection string, query docstore.Query, patch docstore.Document, opts docstore.UpdateOptions) (int, error) {
	if err := docstore.CheckCollection(docstore.OpUpdate, collection); err != nil {
		return 0, err
	}
	resp, err := c.call(ctx, request{
		Op:         docstore.OpUpdate,
		Collection: collection,
		Query:      query,
		Patch:      patch,
		Multi:      opts.Multi,
		Mode:       opts.Mode,
	})
	if err != nil {
		return 0, docstore.WrapOpError(docstore.OpUpdate, collection, err)
	}
	return resp.Count, nil
}

func (c *Client) Remove(ctx context.Context, collection string, query docstore.Query, opts docstore.RemoveOptions) (int, error) {
	if err := docstore.CheckCollection(docstore.OpRemove, collection); err != nil {
		return 0, err
	}
	resp, err := c.call(ctx, request{
		Op:         docstore.OpRemove,
		Collection: collection,
		Query:      query,
		Multi:      opts.Multi,
	})
	if err != nil {
		return 0, docstore.WrapOpError(docstore.OpRemove, collection, err)
	}
	return resp.Count, nil
}

func (c *Client) ClearCollection(ctx context.Context, collection string) (int, error) {
	if err := docstore.CheckCollection(docstore.OpClearCollection, collection); err != nil {
		return 0, err
	}
	resp, err := c.call(ctx, request{
		Op:         docstore.OpClearCollection,
		Collection: collection,
	})
	if err != nil {
		return 0, docstore.WrapOpError(docstore.OpClearCollection, collection, err)
	}
	return resp.Count, nil
}

func (c *Client) BulkInsert(ctx context.Context, collection string, docs []docstore.Document) ([]docstore.Document, error) {
	if err := docstore.CheckCollection(docstore.OpBulkInsert, collection); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []docstore.Document{}, nil
	}
	resp, err := c.call(ctx, request{
		Op:         docstore.OpBulkInsert,
		Collection: collection,
		Docs:       docs,
	})
	if err != nil {
		return nil, docstore.WrapOpError(docstore.OpBulkInsert, collection, err)
	}
	return resp.Docs, nil
}
