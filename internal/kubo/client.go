package kubo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/systemshift/memex-object/internal/metrics"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

// DefaultAPIURL is where a local Kubo daemon serves its RPC API.
const DefaultAPIURL = "http://localhost:5001/api/v0"

const defaultTimeout = 30 * time.Second

var log = logging.Logger("kubo")

// Client is an HTTP client for the Kubo (IPFS) daemon RPC API. Every call is
// a POST to <api>/<command>; cancellation follows the request context.
type Client struct {
	apiURL  string
	client  *http.Client
	timeout time.Duration
	headers http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each DoCommand and Upload call, body read included.
// Zero disables it. PostDownload streams are bounded by the caller's
// context only.
func WithTimeout(d time.Duration) Option {
	return func(k *Client) {
		k.timeout = d
	}
}

// WithHeader adds a header to every request, e.g. Authorization for a
// daemon behind an authenticating proxy.
func WithHeader(key, value string) Option {
	return func(k *Client) {
		k.headers.Add(key, value)
	}
}

// NewClient creates a client for the Kubo API at the given URL.
func NewClient(apiURL string, opts ...Option) *Client {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = DefaultAPIURL
	}
	k := &Client{
		apiURL:  strings.TrimRight(apiURL, "/"),
		client:  &http.Client{},
		timeout: defaultTimeout,
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// IsAvailable checks if the Kubo daemon is reachable.
func (k *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := k.post(ctx, "id", "", nil, nil, "")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// DoCommand runs command with an optional positional arg and "key=value"
// options, and returns the response body.
func (k *Client) DoCommand(ctx context.Context, command, arg string, opts ...string) ([]byte, error) {
	ctx, cancel := k.withTimeout(ctx)
	defer cancel()
	resp, err := k.post(ctx, command, arg, opts, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ipfs %s: read response: %w", command, err)
	}
	return body, nil
}

// Upload sends data as the single file part of a multipart body and returns
// the response body.
func (k *Client) Upload(ctx context.Context, command string, data []byte, opts ...string) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "data")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	ctx, cancel := k.withTimeout(ctx)
	defer cancel()
	resp, err := k.post(ctx, command, "", opts, &buf, w.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ipfs %s: read response: %w", command, err)
	}
	return body, nil
}

// PostDownload runs command and returns the response body as a stream. The
// caller must close it; leaving it open holds the connection.
func (k *Client) PostDownload(ctx context.Context, command, arg string, opts ...string) (io.ReadCloser, error) {
	resp, err := k.post(ctx, command, arg, opts, nil, "")
	if err != nil {
		return nil, err
	}
	return &streamBody{ReadCloser: resp.Body, resp: resp, command: command}, nil
}

func (k *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if k.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, k.timeout)
}

func (k *Client) post(ctx context.Context, command, arg string, opts []string, body io.Reader, contentType string) (*http.Response, error) {
	start := time.Now()
	resp, err := k.send(ctx, command, arg, opts, body, contentType)

	mutators := []tag.Mutator{tag.Insert(metrics.Command, command)}
	if err != nil {
		stats.RecordWithOptions(ctx,
			stats.WithTags(mutators...),
			stats.WithMeasurements(metrics.RPCErrors.M(1)))
		log.Debugw("rpc failed", "command", command, "arg", arg, "err", err)
		return nil, err
	}
	stats.RecordWithOptions(ctx,
		stats.WithTags(mutators...),
		stats.WithMeasurements(metrics.RPCLatency.M(metrics.MsecSince(start))))
	log.Debugw("rpc", "command", command, "arg", arg, "elapsed", time.Since(start))
	return resp, nil
}

func (k *Client) send(ctx context.Context, command, arg string, opts []string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.commandURL(command, arg, opts), body)
	if err != nil {
		return nil, fmt.Errorf("ipfs %s: %w", command, err)
	}
	for key, values := range k.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfs %s: %w", command, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, newHTTPError(command, resp.StatusCode, b)
	}
	return resp, nil
}

func (k *Client) commandURL(command, arg string, opts []string) string {
	q := url.Values{}
	if arg != "" {
		q.Set("arg", arg)
	}
	for _, o := range opts {
		key, value, ok := strings.Cut(o, "=")
		if !ok {
			value = "true"
		}
		q.Add(key, value)
	}
	u := k.apiURL + "/" + strings.TrimLeft(command, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

type streamBody struct {
	io.ReadCloser
	resp    *http.Response
	command string
}

func (s *streamBody) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	if err == io.EOF {
		if msg := s.resp.Trailer.Get("X-Stream-Error"); msg != "" {
			return n, &StreamError{Command: s.command, Message: msg}
		}
	}
	return n, err
}
