// Package alist speaks the Alist v3 HTTP API: token login, paginated
// directory listing and per-file link resolution. The Source type adapts a
// client into the mirror engine's enumeration interface.
package alist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"strmsync/pkg/plog"
)

const (
	loginEndpoint = "/api/auth/login"
	listEndpoint  = "/api/fs/list"
	getEndpoint   = "/api/fs/get"

	// listPageSize is the per_page value for fs/list pagination.
	listPageSize = 1000

	defaultTimeout = 30 * time.Second
)

// Client is a thin authenticated wrapper over one Alist server. Requests
// are issued serially by Source; concurrent use before authentication has
// completed is not supported.
type Client struct {
	baseURL  string
	username string
	password string
	token    string

	httpClient *http.Client
}

// ClientOptions configures a Client. Either Token or Username/Password must
// be provided for servers that require authentication; guest-readable
// servers need neither.
type ClientOptions struct {
	// URL is the server base, e.g. "https://alist.example.com".
	URL      string
	Username string
	Password string
	// Token is a pre-issued API token; when set, Login is a no-op.
	Token string
	// Timeout bounds every single request. Zero means a 30 second default.
	Timeout time.Duration
}

// NewClient validates the options and builds a client. No network traffic
// happens until Login or the first request.
func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(opts.URL), "/")
	if base == "" {
		return nil, fmt.Errorf("server URL cannot be empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", opts.URL, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:  base,
		username: opts.Username,
		password: opts.Password,
		token:    opts.Token,
		httpClient: &http.Client{
			Timeout: timeout,
			// Compression is negotiated manually so the gzip reader is
			// under our control.
			Transport: &http.Transport{DisableCompression: true},
		},
	}, nil
}

// Login obtains an API token from the configured credentials. Called
// automatically by the request path when no token is present; calling it
// eagerly surfaces credential errors before a run starts.
func (c *Client) Login(ctx context.Context) error {
	if c.token != "" {
		return nil
	}
	if c.username == "" {
		// Anonymous access; the server decides what a guest may list.
		return nil
	}

	var data loginData
	err := c.post(ctx, loginEndpoint, loginRequest{
		Username: c.username,
		Password: c.password,
	}, &data)
	if err != nil {
		return fmt.Errorf("login failed for user %s: %w", c.username, err)
	}
	if data.Token == "" {
		return fmt.Errorf("login for user %s returned no token", c.username)
	}

	c.token = data.Token
	plog.Debug("Authenticated with listing server", "url", c.baseURL, "user", c.username)
	return nil
}

// list fetches one paginated chunk of a directory and reports the server's
// total entry count for the directory.
func (c *Client) list(ctx context.Context, dirPath, dirPassword string, page int, refresh bool) (listData, error) {
	var data listData
	err := c.post(ctx, listEndpoint, listRequest{
		Path:     dirPath,
		Password: dirPassword,
		Page:     page,
		PerPage:  listPageSize,
		Refresh:  refresh,
	}, &data)
	if err != nil {
		return listData{}, fmt.Errorf("failed to list %s (page %d): %w", dirPath, page, err)
	}
	return data, nil
}

// get resolves one file's direct upstream link.
func (c *Client) get(ctx context.Context, filePath, dirPassword string) (getData, error) {
	var data getData
	err := c.post(ctx, getEndpoint, getRequest{Path: filePath, Password: dirPassword}, &data)
	if err != nil {
		return getData{}, fmt.Errorf("failed to resolve link for %s: %w", filePath, err)
	}
	return data, nil
}

// contentURL builds the server-proxied download URL for a remote path,
// appending the signature when the server issued one.
func (c *Client) contentURL(remotePath, sign string) string {
	u := c.baseURL + "/d" + escapePath(remotePath)
	if sign != "" {
		u += "?sign=" + url.QueryEscape(sign)
	}
	return u
}

// escapePath percent-encodes each path segment while keeping separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// post performs one JSON round trip and decodes the envelope into out. A
// non-2xx status or a non-200 envelope code is an error.
func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint != loginEndpoint {
		if err := c.Login(ctx); err != nil {
			return err
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to open gzip response from %s: %w", endpoint, err)
		}
		defer gz.Close()
		reader = gz
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned HTTP %d", endpoint, resp.StatusCode)
	}

	var env envelope[json.RawMessage]
	if err := json.NewDecoder(reader).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	if env.Code != http.StatusOK {
		return fmt.Errorf("%s returned code %d: %s", endpoint, env.Code, env.Message)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode payload from %s: %w", endpoint, err)
		}
	}
	return nil
}
