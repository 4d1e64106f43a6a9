package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/middleware"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client implements docstore.Store over the bridge commands.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewClient uses a traced http client when httpClient is nil.
func NewClient(baseURL, secret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		secret:     secret,
		httpClient: httpClient,
	}
}

func (c *Client) Name() string {
	return "bridge"
}

// invoke runs one command and decodes its result into out.
func (c *Client) invoke(ctx context.Context, command string, args commandArgs, out any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: marshal args: %s", docstore.ErrInvalidDocument, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoke/"+command, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: new request: %s", docstore.ErrBackendUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set(middleware.SecretHeader, c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: http client do: %s", docstore.ErrBackendUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %s", docstore.ErrBackendUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var cmdErr commandError
		if err := json.Unmarshal(respBytes, &cmdErr); err != nil || cmdErr.Code == "" {
			return fmt.Errorf("%w: %s: %s", docstore.ErrBackendUnavailable, resp.Status, strings.TrimSpace(string(respBytes)))
		}
		return docstore.ErrorFromCode(cmdErr.Code, cmdErr.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return fmt.Errorf("%w: unmarshal result: %s", docstore.ErrBackendUnavailable, err)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.invoke(ctx, CommandPing, commandArgs{}, nil)
}

func (c *Client) Find(ctx context.Context, collection string, query docstore.Query) ([]docstore.Document, error) {
	if err := docstore.CheckCollection(docstore.OpFind, collection); err != nil {
		return nil, err
	}
	var docs []docstore.Document
	if err := c.invoke(ctx, CommandFind, commandArgs{
		Collection: collection,
		Query:      query,
	}, &docs); err != nil {
		return nil, docstore.WrapOpError(docstore.OpFind, collection, err)
	}
	if docs == nil {
		docs = []docstore.Document{}
	}
	return docs, nil
}

func (c *Client) Insert(ctx context.Context, collection string, doc docstore.Document) (docstore.Document, error) {
	if err := docstore.CheckCollection(docstore.OpInsert, collection); err != nil {
		return nil, err
	}
	var inserted docstore.Document
	if err := c.invoke(ctx, CommandInsert, commandArgs{
		Collection: collection,
		Doc:        doc,
	}, &inserted); err != nil {
		return nil, docstore.WrapOpError(docstore.OpInsert, collection, err)
	}
	return inserted, nil
}

func (c *Client) Update(ctx context.Context, collection string, query docstore.Query, patch docstore.Document, opts docstore.UpdateOptions) (int, error) {
	if err := docstore.CheckCollection(docstore.OpUpdate, collection); err != nil {
		return 0, err
	}
	var count int
	if err := c.invoke(ctx, CommandUpdate, commandArgs{
		Collection: collection,
		Query:      query,
		Update:     patch,
		Options:    opts,
	}, &count); err != nil {
		return 0, docstore.WrapOpError(docstore.OpUpdate, collection, err)
	}
	return count, nil
}

func (c *Client) Remove(ctx context.Context, collection string, query docstore.Query, opts docstore.RemoveOptions) (int, error) {
	if err := docstore.CheckCollection(docstore.OpRemove, collection); err != nil {
		return 0, err
	}
	var count int
	if err := c.invoke(ctx, CommandRemove, commandArgs{
		Collection: collection,
		Query:      query,
		Options:    docstore.UpdateOptions{Multi: opts.Multi},
	}, &count); err != nil {
		return 0, docstore.WrapOpError(docstore.OpRemove, collection, err)
	}
	return count, nil
}

func (c *Client) ClearCollection(ctx context.Context, collection string) (int, error) {
	if err := docstore.CheckCollection(docstore.OpClearCollection, collection); err != nil {
		return 0, err
	}
	var count int
	if err := c.invoke(ctx, CommandClearCollection, commandArgs{
		Collection: collection,
	}, &count); err != nil {
		return 0, docstore.WrapOpError(docstore.OpClearCollection, collection, err)
	}
	return count, nil
}

func (c *Client) BulkInsert(ctx context.Context, collection string, docs []docstore.Document) ([]docstore.Document, error) {
	if err := docstore.CheckCollection(docstore.OpBulkInsert, collection); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []docstore.Document{}, nil
	}
	var inserted []docstore.Document
	if err := c.invoke(ctx, CommandBulkInsert, commandArgs{
		Collection: collection,
		Docs:       docs,
	}, &inserted); err != nil {
		return nil, docstore.WrapOpError(docstore.OpBulkInsert, collection, err)
	}
	return inserted, nil
}
