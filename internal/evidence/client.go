package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	applog "github.com/nao1215/cookieaudit/internal/log"
	"github.com/nao1215/cookieaudit/internal/model"
)

// DefaultClientTimeout bounds one request to the sink.
const DefaultClientTimeout = 60 * time.Second

// Client talks to a remote sink. It implements collector.Submitter and
// orchestrator.Finalizer.
type Client struct {
	baseURL string
	http    *resty.Client
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*clientSettings)

type clientSettings struct {
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// WithClientTimeout sets the per-request timeout.
func WithClientTimeout(d time.Duration) ClientOption {
	return func(s *clientSettings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClientHTTPClient sets the underlying HTTP client.
func WithClientHTTPClient(hc *http.Client) ClientOption {
	return func(s *clientSettings) {
		s.httpClient = hc
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(s *clientSettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewClient creates a Client for the sink at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	s := clientSettings{timeout: DefaultClientTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	var rc *resty.Client
	if s.httpClient != nil {
		rc = resty.NewWithClient(s.httpClient)
	} else {
		rc = resty.New()
	}
	rc.SetTimeout(s.timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(applog.NewRestyLogger(s.logger))

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
		logger:  s.logger,
	}
}

// Submit posts the evidence of one page. Every failure wraps ErrSubmit;
// token rejections additionally wrap ErrInvalidToken or ErrExpiredToken.
func (c *Client) Submit(ctx context.Context, token string, ev model.PageEvidence) error {
	req := EvidenceRequest{
		ScanID:         ev.ScanID,
		Token:          token,
		Cookies:        ev.Cookies,
		LocalStorage:   ev.LocalStorageKeys,
		SessionStorage: ev.SessionStorageKeys,
	}
	if _, err := c.post(ctx, PathEvidence, req); err != nil {
		return fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	return nil
}

// Finalize asks the sink to finalize the run of token.
func (c *Client) Finalize(ctx context.Context, pages []model.PageDescriptor, token string) (*model.LiveResult, error) {
	data, err := c.post(ctx, PathFinalize, FinalizeRequest{Pages: pages, Token: token})
	if err != nil {
		return nil, err
	}
	var live model.LiveResult
	if err := json.Unmarshal(data, &live); err != nil {
		return nil, fmt.Errorf("failed to decode live result: %w", err)
	}
	return &live, nil
}

// Status returns the sink's view of the run of token.
func (c *Client) Status(ctx context.Context, token string) (Status, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Scan-Token", token).
		Get(c.baseURL + PathStatus)
	if err != nil {
		return Status{}, err
	}
	data, err := unwrap(resp.StatusCode(), resp.Body())
	if err != nil {
		return Status{}, err
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return Status{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return st, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.baseURL + path)
	if err != nil {
		c.logger.Debug("sink request failed", "path", path, "error", err)
		return nil, err
	}
	return unwrap(resp.StatusCode(), resp.Body())
}

// unwrap decodes an envelope and turns a failure into an error that
// matches the sentinel of its code.
func unwrap(status int, body []byte) (json.RawMessage, error) {
	var env Response
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("unexpected response (HTTP %d): %w", status, err)
	}
	if env.Success {
		return env.Data, nil
	}
	if env.Error == nil {
		return nil, fmt.Errorf("request failed with HTTP %d", status)
	}
	if sentinel := sentinelFor(env.Error.Code); sentinel != nil {
		return nil, fmt.Errorf("%w: %w", sentinel, env.Error)
	}
	return nil, env.Error
}

func sentinelFor(code string) error {
	switch code {
	case CodeInvalidToken:
		return ErrInvalidToken
	case CodeExpiredToken:
		return ErrExpiredToken
	case CodeMissingParams:
		return ErrMissingParams
	case CodeMalformed:
		return ErrMalformedRequest
	default:
		return nil
	}
}

// IsAuthError reports whether err is a token rejection. Such errors are
// never worth retrying.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrExpiredToken)
}
