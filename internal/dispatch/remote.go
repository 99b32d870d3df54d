package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jroosing/labnet/internal/errs"
)

// Envelope is the JSON body of every API response.
type Envelope struct {
	OK     bool    `json:"ok"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
	Kind   string  `json:"kind,omitempty"`
}

// Result wraps a successful call's output.
type Result struct {
	Output any `json:"output"`
}

// Success builds the envelope for a successful call.
func Success(output any) Envelope {
	return Envelope{OK: true, Result: &Result{Output: output}}
}

// Failure builds the envelope for a failed call.
func Failure(err error) Envelope {
	return Envelope{OK: false, Error: err.Error(), Kind: errs.KindOf(err).String()}
}

// Client talks to another labnet instance's HTTP API.
type Client struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
}

// NewClient creates a client for the instance at baseURL.
func NewClient(baseURL, user, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		user:       user,
		password:   password,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the instance address.
func (c *Client) BaseURL() string { return c.baseURL }

// Run invokes module.function on the remote instance.
func (c *Client) Run(ctx context.Context, module, function string, args map[string]string) (any, error) {
	if args == nil {
		args = map[string]string{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "encode arguments")
	}
	path := "/api/v1/" + url.PathEscape(module) + "/run/" + url.PathEscape(function)
	return c.do(ctx, http.MethodPost, path, body)
}

// Get fetches an envelope-returning endpoint such as /api/v1/_servers/list_all.
func (c *Client) Get(ctx context.Context, path string) (any, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Catalog fetches the remote module catalog.
func (c *Client) Catalog(ctx context.Context) (Catalog, error) {
	out, err := c.Get(ctx, "/api/v1/_modules/list")
	if err != nil {
		return nil, err
	}
	var cat Catalog
	if err := Decode(out, &cat); err != nil {
		return nil, errs.Wrap(errs.ExternalTool, err, "decode catalog from %s", c.baseURL)
	}
	return cat, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (any, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ExternalTool, err, "request to %s failed", c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errs.New(errs.ExternalTool, "unexpected status %d from %s: %s", resp.StatusCode, c.baseURL, strings.TrimSpace(string(msg)))
	}

	var env Envelope
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, errs.Wrap(errs.ExternalTool, err, "decode response from %s", c.baseURL)
	}
	if !env.OK {
		return nil, &errs.Error{Kind: errs.ParseKind(env.Kind), Msg: env.Error}
	}
	if env.Result == nil {
		return nil, nil
	}
	return env.Result.Output, nil
}

// RemoteHandle exposes a module hosted by another instance. Arguments are
// validated locally against the advertised schema before any request.
type RemoteHandle struct {
	name   string
	client *Client
	fns    map[string]FunctionInfo
}

func (h *RemoteHandle) Name() string { return h.name }

func (h *RemoteHandle) Local() bool { return false }

func (h *RemoteHandle) Functions() map[string]FunctionInfo { return h.fns }

func (h *RemoteHandle) Invoke(ctx context.Context, function string, raw map[string]string) (any, error) {
	fi, ok := h.fns[function]
	if !ok {
		return nil, errs.New(errs.NotFound, "function '%s' not found in module '%s'", function, h.name)
	}
	if _, err := Validate(fi.Params, raw); err != nil {
		return nil, err
	}
	return h.client.Run(ctx, h.name, function, raw)
}
