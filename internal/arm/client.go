package arm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"

	"github.com/Azure/azure-cli-sub020/internal/engine"
	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// Defaults for the public cloud.
const (
	DefaultEndpoint   = "https://management.azure.com"
	DefaultAPIVersion = "2021-04-01"

	moduleName = "azwait"
)

// Options configure a Client.
type Options struct {
	// Endpoint is the management endpoint, without a trailing slash.
	Endpoint string

	// APIVersion is sent as the api-version query parameter.
	APIVersion string

	// Credential authenticates requests. Nil sends no Authorization header.
	Credential azcore.TokenCredential

	// MaxRetries bounds transport-level retries of one PUT or DELETE.
	// Negative disables retries; zero uses the azcore default. Polls are
	// never retried by the transport.
	MaxRetries int32

	// RetryDelay is the initial transport retry delay. Zero uses the azcore default.
	RetryDelay time.Duration

	// Transport overrides the HTTP transport (tests).
	Transport policy.Transporter

	// Logger receives one Debug line per request. Default: slog.Default().
	Logger *slog.Logger
}

// Client issues resource requests. It is safe for concurrent use.
type Client struct {
	pl         runtime.Pipeline
	endpoint   string
	apiVersion string
}

// Response is the result of a mutating request.
type Response struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Snapshot is the response body, empty for 202 and 204 responses.
	Snapshot ir.Snapshot

	// AsyncOperation is the Azure-AsyncOperation header, if any.
	AsyncOperation string

	// Location is the Location header, if any.
	Location string
}

// Accepted reports whether the service accepted the request for
// asynchronous completion.
func (r Response) Accepted() bool {
	return r.StatusCode == http.StatusAccepted
}

// NewClient creates a Client.
func NewClient(opts Options) (*Client, error) {
	endpoint := strings.TrimSuffix(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q", opts.Endpoint)
	}
	apiVersion := opts.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clientOpts := &policy.ClientOptions{
		Retry: policy.RetryOptions{
			MaxRetries: opts.MaxRetries,
			RetryDelay: opts.RetryDelay,
		},
		Transport: opts.Transport,
	}

	plOpts := runtime.PipelineOptions{
		PerRetry: []policy.Policy{&logPolicy{logger: logger}},
	}
	if opts.Credential != nil {
		scope := endpoint + "/.default"
		plOpts.PerRetry = append([]policy.Policy{
			runtime.NewBearerTokenPolicy(opts.Credential, []string{scope}, &policy.BearerTokenOptions{
				InsecureAllowCredentialWithHTTP: u.Scheme == "http",
			}),
		}, plOpts.PerRetry...)
	}

	return &Client{
		pl:         runtime.NewPipeline(moduleName, ir.CLIVersion, plOpts, clientOpts),
		endpoint:   endpoint,
		apiVersion: apiVersion,
	}, nil
}

// Endpoint returns the management endpoint in use.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Poll fetches the current representation of h. It implements engine.Poller.
//
// 200 yields a snapshot; 404 is NotFound; 401 and 403 are Unauthorized;
// 408, 429, 5xx and transport failures are Transient; other client errors
// are Rejected.
//
// Transport retries are off for polls: the wait loop already retries a
// transient failure on its own backoff and counts every attempt as a poll.
func (c *Client) Poll(ctx context.Context, h ir.Handle) (ir.Snapshot, error) {
	ctx = policy.WithRetryOptions(ctx, policy.RetryOptions{MaxRetries: -1})
	resp, err := c.do(ctx, http.MethodGet, h, nil)
	if err != nil {
		return ir.Snapshot{}, err
	}
	if !runtime.HasStatusCode(resp, http.StatusOK) {
		return ir.Snapshot{}, fetchError(h, resp)
	}

	body, err := runtime.Payload(resp)
	if err != nil {
		return ir.Snapshot{}, engine.NewFetchError(engine.FetchTransient, h, fmt.Errorf("read response: %w", err))
	}
	snap, err := ir.ParseSnapshot(body)
	if err != nil {
		return ir.Snapshot{}, &engine.FetchError{Kind: engine.FetchTransient, Handle: h, StatusCode: resp.StatusCode, Err: err}
	}
	return snap, nil
}

// Put creates or replaces h with body, which must be a JSON object.
func (c *Client) Put(ctx context.Context, h ir.Handle, body []byte) (Response, error) {
	resp, err := c.do(ctx, http.MethodPut, h, body)
	if err != nil {
		return Response{}, err
	}
	if !runtime.HasStatusCode(resp, http.StatusOK, http.StatusCreated, http.StatusAccepted) {
		return Response{}, fetchError(h, resp)
	}
	return readResponse(h, resp)
}

// Delete deletes h.
func (c *Client) Delete(ctx context.Context, h ir.Handle) (Response, error) {
	resp, err := c.do(ctx, http.MethodDelete, h, nil)
	if err != nil {
		return Response{}, err
	}
	if !runtime.HasStatusCode(resp, http.StatusOK, http.StatusAccepted, http.StatusNoContent) {
		return Response{}, fetchError(h, resp)
	}
	return readResponse(h, resp)
}

func (c *Client) do(ctx context.Context, method string, h ir.Handle, body []byte) (*http.Response, error) {
	if h.IsZero() {
		return nil, engine.NewFetchError(engine.FetchRejected, h, errors.New("resource handle is empty"))
	}

	req, err := runtime.NewRequest(ctx, method, c.endpoint+h.ID())
	if err != nil {
		return nil, engine.NewFetchError(engine.FetchRejected, h, fmt.Errorf("build request: %w", err))
	}
	q := req.Raw().URL.Query()
	q.Set("api-version", c.apiVersion)
	req.Raw().URL.RawQuery = q.Encode()
	req.Raw().Header.Set("Accept", "application/json")

	if body != nil {
		if err := req.SetBody(streaming.NopCloser(bytes.NewReader(body)), "application/json"); err != nil {
			return nil, engine.NewFetchError(engine.FetchRejected, h, fmt.Errorf("set body: %w", err))
		}
	}

	resp, err := c.pl.Do(req)
	if err != nil {
		return nil, engine.ClassifyError(h, err)
	}
	return resp, nil
}

// fetchError maps a failed response to a FetchError carrying the service
// error code.
func fetchError(h ir.Handle, resp *http.Response) *engine.FetchError {
	err := runtime.NewResponseError(resp)
	fe := &engine.FetchError{
		Kind:       engine.KindForStatus(resp.StatusCode),
		Handle:     h,
		StatusCode: resp.StatusCode,
		Err:        err,
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		fe.Code = respErr.ErrorCode
	}
	return fe
}

func readResponse(h ir.Handle, resp *http.Response) (Response, error) {
	out := Response{
		StatusCode:     resp.StatusCode,
		AsyncOperation: resp.Header.Get("Azure-AsyncOperation"),
		Location:       resp.Header.Get("Location"),
	}

	body, err := runtime.Payload(resp)
	if err != nil {
		return Response{}, engine.NewFetchError(engine.FetchTransient, h, fmt.Errorf("read response: %w", err))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	snap, err := ir.ParseSnapshot(body)
	if err != nil {
		// Some providers answer 202 with a non-object body; the status is
		// what matters for a mutating call.
		return out, nil
	}
	out.Snapshot = snap
	return out, nil
}

// logPolicy logs each request attempt at Debug.
type logPolicy struct {
	logger *slog.Logger
}

func (p *logPolicy) Do(req *policy.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := req.Next()

	attrs := []any{
		"method", req.Raw().Method,
		"path", req.Raw().URL.Path,
		"duration", time.Since(start),
	}
	if err != nil {
		p.logger.Debug("request failed", append(attrs, "error", err)...)
		return resp, err
	}
	p.logger.Debug("request completed", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}
