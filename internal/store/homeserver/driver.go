// Package homeserver implements store.Store against the Pubky homeserver
// HTTP API.
//
// Objects live at <endpoint>/<owner>/<path>. GET reads, PUT writes,
// DELETE removes. Listing a directory prefix is a GET on the directory
// URL; the response body is one full pubky:// key per line.
//
// Every request is bounded by the configured timeout and attempted exactly
// once — a timeout is treated like any other failure.
package homeserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gillohner/pubky-tools/internal/errs"
	"github.com/gillohner/pubky-tools/internal/keys"
	"github.com/gillohner/pubky-tools/internal/store"
)

// Driver is a Pubky homeserver implementation of store.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	endpoint string
	client   *http.Client
	cfg      *store.Config
}

// New creates a Driver for the homeserver at cfg.Endpoint.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *store.Config) (*Driver, error) {
	if cfg.Endpoint == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "homeserver endpoint is required")
	}

	d := &Driver{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		client:   &http.Client{},
		cfg:      cfg,
	}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// --- store.Store implementation ---

// Ping verifies the homeserver answers HTTP. A 4xx on the root URL still
// proves the server is there; a 5xx means it is up but broken.
func (d *Driver) Ping(ctx context.Context) error {
	_, code, err := d.do(ctx, http.MethodGet, d.endpoint+"/", nil)
	if err != nil {
		return err
	}
	if code >= 500 {
		return errs.Newf(errs.ErrKindNetworkFailure, "homeserver returned %d on ping", code)
	}
	return nil
}

// Close is a no-op — the HTTP client holds no dedicated resources.
func (d *Driver) Close() error {
	return nil
}

// Get returns the bytes stored at key.
func (d *Driver) Get(ctx context.Context, key string) ([]byte, error) {
	u, err := d.keyURL(key)
	if err != nil {
		return nil, err
	}

	body, code, err := d.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if err := mapStatus(code, key); err != nil {
		return nil, err
	}
	return body, nil
}

// Put stores value at key, overwriting any previous object.
func (d *Driver) Put(ctx context.Context, key string, value []byte) error {
	u, err := d.keyURL(key)
	if err != nil {
		return err
	}

	_, code, err := d.do(ctx, http.MethodPut, u, value)
	if err != nil {
		return err
	}
	return mapStatus(code, key)
}

// Delete removes the object at key.
func (d *Driver) Delete(ctx context.Context, key string) error {
	u, err := d.keyURL(key)
	if err != nil {
		return err
	}

	_, code, err := d.do(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	return mapStatus(code, key)
}

// List returns the full keys under prefix. The homeserver answers a GET on
// a directory URL with one pubky:// key per line.
func (d *Driver) List(ctx context.Context, prefix string, opts store.ListOptions) ([]string, error) {
	u, err := d.keyURL(prefix)
	if err != nil {
		return nil, err
	}

	params := make([]string, 0, 3)
	if opts.Cursor != "" {
		params = append(params, "cursor="+opts.Cursor)
	}
	if opts.Reverse {
		params = append(params, "reverse=true")
	}
	if opts.Limit > 0 {
		params = append(params, "limit="+strconv.Itoa(opts.Limit))
	}
	if len(params) > 0 {
		u += "?" + strings.Join(params, "&")
	}

	body, code, err := d.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if err := mapStatus(code, prefix); err != nil {
		return nil, err
	}

	var result []string
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}
	return result, nil
}

// --- internals ---

// do issues a single bounded request and drains the response.
func (d *Driver) do(ctx context.Context, method, url string, payload []byte) ([]byte, int, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, 0, errs.Wrap(errs.ErrKindInvalidInput, "building request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, mapTransportError(err, fmt.Sprintf("%s %s failed", method, url))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, mapTransportError(err, "reading response body")
	}
	return body, resp.StatusCode, nil
}

// keyURL converts a pubky:// key into its HTTP address on this homeserver.
func (d *Driver) keyURL(rawKey string) (string, error) {
	k, err := keys.Parse(rawKey)
	if err != nil {
		return "", err
	}
	return d.endpoint + "/" + k.Owner() + k.Path(), nil
}

func (d *Driver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := d.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = store.DefaultConfig(store.ProviderHomeserver).RequestTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// mapStatus converts an HTTP status code into a typed error, nil for 2xx.
func mapStatus(code int, key string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return errs.Newf(errs.ErrKindNotFound, "no object at %s", key)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.Newf(errs.ErrKindUnauthorized, "homeserver denied access to %s", key)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return errs.Newf(errs.ErrKindTimeout, "homeserver timed out on %s", key)
	default:
		return errs.Newf(errs.ErrKindNetworkFailure, "homeserver returned %d for %s", code, key)
	}
}

// mapTransportError converts a net/http client error into a typed error.
func mapTransportError(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	return errs.Wrap(errs.ErrKindNetworkFailure, msg, err)
}
