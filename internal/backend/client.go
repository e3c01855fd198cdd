// Package backend is an HTTP client for a remote asset registry. GIS pages
// use it instead of the local DuckDB service when the server runs with a
// backend URL.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-assets/internal/humastar"
	"github.com/joeblew999/plat-assets/internal/metrics"
	"github.com/joeblew999/plat-assets/internal/service"
)

// pageLimit is the page size used when listing every asset.
const pageLimit = 500

// NetworkError is a failed backend call: either the request never got a
// response (Status 0) or the response was not 2xx. Err carries
// service.ErrNotFound, service.ErrExists, or a *service.ValidationError when
// the status maps onto one.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("backend %s: http %d: %v", e.Op, e.Status, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Client talks to the /api/v1 REST routes of an asset registry.
type Client struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewClient returns a client for baseURL. A nil hc gets a 10 second timeout.
func NewClient(baseURL string, hc *http.Client, log *slog.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend: empty base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend: invalid base url %q", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{baseURL: baseURL, client: hc, log: log.With("backend", baseURL)}, nil
}

// BaseURL returns the registry the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Health checks that the backend answers.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, "health", http.MethodGet, "/health", nil, &body); err != nil {
		return err
	}
	if body.Status != "ok" {
		return &NetworkError{Op: "health", Status: http.StatusOK, Err: fmt.Errorf("status %q", body.Status)}
	}
	return nil
}

// ListAssets fetches every asset, following pages until the total is read.
func (c *Client) ListAssets(ctx context.Context) ([]service.Asset, error) {
	assets := []service.Asset{}
	for offset := 0; ; {
		var page humastar.PageBody[service.Asset]
		path := "/api/v1/assets?offset=" + strconv.Itoa(offset) + "&limit=" + strconv.Itoa(pageLimit)
		if err := c.doJSON(ctx, "list assets", http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		assets = append(assets, page.Data...)
		offset += len(page.Data)
		if len(page.Data) == 0 || offset >= page.Total {
			return assets, nil
		}
	}
}

// GetAsset fetches one asset.
func (c *Client) GetAsset(ctx context.Context, id string) (service.Asset, error) {
	var a service.Asset
	err := c.doJSON(ctx, "get asset", http.MethodGet, "/api/v1/assets/"+url.PathEscape(id), nil, &a)
	return a, err
}

// CreateAsset registers a new asset.
func (c *Client) CreateAsset(ctx context.Context, a service.Asset) (service.Asset, error) {
	var out service.Asset
	err := c.doJSON(ctx, "create asset", http.MethodPost, "/api/v1/assets", a, &out)
	return out, err
}

// UpdateAsset replaces a stored asset.
func (c *Client) UpdateAsset(ctx context.Context, a service.Asset) (service.Asset, error) {
	var out service.Asset
	err := c.doJSON(ctx, "update asset", http.MethodPut, "/api/v1/assets/"+url.PathEscape(a.ID), a, &out)
	return out, err
}

// DeleteAsset removes an asset.
func (c *Client) DeleteAsset(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete asset", http.MethodDelete, "/api/v1/assets/"+url.PathEscape(id), nil, nil)
}

// ListConsumables fetches the inventory as stored, without panchayat names.
func (c *Client) ListConsumables(ctx context.Context) ([]service.Consumable, error) {
	items := []service.Consumable{}
	err := c.doJSON(ctx, "list consumables", http.MethodGet, "/api/v1/consumables", nil, &items)
	return items, err
}

// ListConsumablesExpanded fetches the inventory and resolves each distinct
// panchayat name with its own lookup.
func (c *Client) ListConsumablesExpanded(ctx context.Context) ([]service.Consumable, error) {
	items, err := c.ListConsumables(ctx)
	if err != nil {
		return nil, err
	}
	names, err := service.ResolvePanchayatNames(ctx, items, c.Panchayat)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].PanchayatName = names[items[i].PanchayatID]
	}
	return items, nil
}

// CreateConsumable adds an inventory item.
func (c *Client) CreateConsumable(ctx context.Context, item service.Consumable) (service.Consumable, error) {
	var out service.Consumable
	err := c.doJSON(ctx, "create consumable", http.MethodPost, "/api/v1/consumables", item, &out)
	return out, err
}

// DeleteConsumable removes an inventory item.
func (c *Client) DeleteConsumable(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete consumable", http.MethodDelete, "/api/v1/consumables/"+url.PathEscape(id), nil, nil)
}

// PutPanchayat creates or renames a panchayat.
func (c *Client) PutPanchayat(ctx context.Context, p service.Panchayat) (service.Panchayat, error) {
	var out service.Panchayat
	err := c.doJSON(ctx, "put panchayat", http.MethodPost, "/api/v1/panchayats", p, &out)
	return out, err
}

// Panchayat fetches one panchayat.
func (c *Client) Panchayat(ctx context.Context, id string) (service.Panchayat, error) {
	var p service.Panchayat
	err := c.doJSON(ctx, "get panchayat", http.MethodGet, "/api/v1/panchayats/"+url.PathEscape(id), nil, &p)
	return p, err
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) (err error) {
	t0 := time.Now()
	defer func() {
		metrics.BackendRequestsTotal.WithLabelValues(op, metrics.Result(err)).Inc()
		metrics.BackendDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	}()

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &NetworkError{Op: op, Err: err}
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Error("backend request failed", "op", op, "error", err)
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.log.Debug("backend response", "op", op, "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: statusError(resp)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// statusError turns a non-2xx response into the matching service error. The
// body is read as a huma problem document when it is one.
func statusError(resp *http.Response) error {
	var problem huma.ErrorModel
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &problem) != nil {
		problem = huma.ErrorModel{Detail: strings.TrimSpace(string(raw))}
	}
	msg := problem.Detail
	if msg == "" {
		msg = problem.Title
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, service.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", msg, service.ErrExists)
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		var verr service.ValidationError
		for _, d := range problem.Errors {
			if d == nil {
				continue
			}
			verr.Add(strings.TrimPrefix(d.Location, "body."), d.Message)
		}
		if len(verr.Fields) > 0 {
			return &verr
		}
	}
	return errors.New(msg)
}
