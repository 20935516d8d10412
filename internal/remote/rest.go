package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/sling"
	"golang.org/x/oauth2"

	"github.com/roach88/habitsync/internal/model"
)

// DefaultTimeout bounds a single REST call.
const DefaultTimeout = 15 * time.Second

// RESTClient is a Client speaking the routes served by Handler.
//
// Thread-safety: RESTClient is safe for concurrent use; every call starts
// from a fresh copy of the base request.
type RESTClient struct {
	base *sling.Sling
}

// RESTOption configures a RESTClient.
type RESTOption func(*restConfig)

type restConfig struct {
	httpClient *http.Client
	tokens     oauth2.TokenSource
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) RESTOption {
	return func(cfg *restConfig) {
		cfg.httpClient = c
	}
}

// WithTokenSource attaches a bearer token from the identity provider to
// every request.
func WithTokenSource(ts oauth2.TokenSource) RESTOption {
	return func(cfg *restConfig) {
		cfg.tokens = ts
	}
}

// NewRESTClient returns a client for user's documents under baseURL.
func NewRESTClient(baseURL, user string, opts ...RESTOption) *RESTClient {
	cfg := restConfig{httpClient: &http.Client{Timeout: DefaultTimeout}}
	for _, opt := range opts {
		opt(&cfg)
	}

	httpClient := cfg.httpClient
	if cfg.tokens != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, cfg.httpClient)
		httpClient = oauth2.NewClient(ctx, cfg.tokens)
		httpClient.Timeout = cfg.httpClient.Timeout
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base := sling.New().Client(httpClient).Base(baseURL).
		Set("Accept", "application/json").
		Path("v1/users/" + url.PathEscape(user) + "/")

	return &RESTClient{base: base}
}

// apiError is the JSON body of every non-2xx response from Handler.
type apiError struct {
	Error string `json:"error"`
}

// FetchSnapshot implements Client.
func (c *RESTClient) FetchSnapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	if err := c.do(ctx, c.base.New().Get("snapshot"), &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	full := model.EmptySnapshot()
	full.Overlay(snap)
	return full, nil
}

// PushSnapshot implements Client.
func (c *RESTClient) PushSnapshot(ctx context.Context, snap model.Snapshot) error {
	if err := c.do(ctx, c.base.New().Put("snapshot").BodyJSON(snap), nil); err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}
	return nil
}

// AppendJournalEntry implements Client.
func (c *RESTClient) AppendJournalEntry(ctx context.Context, entry model.JournalEntry) error {
	if err := c.do(ctx, c.base.New().Post("journal").BodyJSON(entry), nil); err != nil {
		return fmt.Errorf("append journal entry %s: %w", entry.ID, err)
	}
	return nil
}

// DeleteJournalEntry implements Client.
func (c *RESTClient) DeleteJournalEntry(ctx context.Context, id string) error {
	if err := c.do(ctx, c.base.New().Delete("journal/"+url.PathEscape(id)), nil); err != nil {
		return fmt.Errorf("delete journal entry %s: %w", id, err)
	}
	return nil
}

// UpsertCatalogRow implements Client.
func (c *RESTClient) UpsertCatalogRow(ctx context.Context, kind model.Kind, row json.RawMessage) error {
	if err := c.do(ctx, c.base.New().Post(catalogPath(kind)).BodyJSON(row), nil); err != nil {
		return fmt.Errorf("upsert %s row: %w", kind, err)
	}
	return nil
}

// DeleteCatalogRow implements Client.
func (c *RESTClient) DeleteCatalogRow(ctx context.Context, kind model.Kind, id model.EntityID) error {
	path := catalogPath(kind) + "/" + url.PathEscape(string(id))
	if err := c.do(ctx, c.base.New().Delete(path), nil); err != nil {
		return fmt.Errorf("delete %s row %s: %w", kind, id, err)
	}
	return nil
}

func catalogPath(kind model.Kind) string {
	return "catalogs/" + url.PathEscape(string(kind))
}

// do sends the request and classifies the outcome. Transport failures
// wrap ErrUnreachable; any non-2xx answer is a *RejectedError.
func (c *RESTClient) do(ctx context.Context, s *sling.Sling, success any) error {
	req, err := s.Request()
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	failure := new(apiError)
	resp, err := s.Do(req.WithContext(ctx), success, failure)
	if resp == nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RejectedError{Status: resp.StatusCode, Message: failure.Error}
	}
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
