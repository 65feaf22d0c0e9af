// Package backend provides a client for the tagging backend REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/logging"
	"github.com/kgcorpus/tagging-console/pkg/metrics"
	"github.com/kgcorpus/tagging-console/pkg/models"
	"github.com/kgcorpus/tagging-console/pkg/retry"
)

// Credential is what the backend issued at login: session cookies, a
// bearer token, or both. It is sent with every call.
type Credential struct {
	Cookies map[string]string `json:"cookies,omitempty"`
	Token   string            `json:"token,omitempty"`
}

// Empty reports whether the credential carries nothing.
func (c *Credential) Empty() bool {
	return c == nil || (len(c.Cookies) == 0 && c.Token == "")
}

func (c *Credential) apply(req *http.Request) {
	if c == nil {
		return
	}
	for name, value := range c.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

// Client provides access to the tagging backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
	retry      *retry.Config
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every call. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records every call in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRetry sets the backoff policy for reads. Nil disables retries.
func WithRetry(cfg *retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     logger.Named("backend"),
		retry:      retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// call describes one request.
type call struct {
	op          string
	method      string
	segments    []string
	query       url.Values
	body        []byte
	contentType string
	cred        *Credential
}

type response struct {
	status  int
	body    []byte
	cookies []*http.Cookie
}

// do sends the call, retrying GETs on transport failures, and decodes a
// 2xx JSON body into out when out is non-nil.
func (c *Client) do(ctx context.Context, cl call, out any) (*response, error) {
	send := func() (*response, error) { return c.send(ctx, cl) }

	var resp *response
	var err error
	if cl.method == http.MethodGet && c.retry != nil {
		resp, err = retry.DoIfRetryable(ctx, c.retry, send)
	} else {
		resp, err = send()
	}
	if err != nil {
		return nil, err
	}

	if out != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return nil, fmt.Errorf("%s: failed to parse response: %w", cl.op, err)
		}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, cl call) (*response, error) {
	endpoint, err := buildURL(c.baseURL, cl.segments...)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	if len(cl.query) > 0 {
		endpoint += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}
	cl.cred.apply(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveBackend(cl.op, 0, time.Since(start))
		c.logger.Warn("Backend request failed",
			zap.String("operation", cl.op),
			zap.String("error", logging.SanitizeError(err)))
		return nil, &TransportError{Op: cl.op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	c.metrics.ObserveBackend(cl.op, resp.StatusCode, elapsed)
	if err != nil {
		return nil, &TransportError{Op: cl.op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		level := zap.WarnLevel
		if resp.StatusCode == http.StatusUnauthorized {
			level = zap.DebugLevel
		}
		c.logger.Log(level, "Backend returned error",
			zap.String("operation", cl.op),
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", elapsed),
			zap.String("body", logging.SanitizeBody(data)))
		return nil, &StatusError{Op: cl.op, Status: resp.StatusCode, Detail: detail(data), Body: string(data)}
	}

	c.logger.Debug("Backend request",
		zap.String("operation", cl.op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", elapsed))

	return &response{status: resp.StatusCode, body: data, cookies: resp.Cookies()}, nil
}

func jsonBody(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return b, nil
}

// Login exchanges a username and password for a credential. Cookies set by
// the backend and any token in the body are captured.
func (c *Client) Login(ctx context.Context, username, password string) (*Credential, error) {
	body, err := jsonBody(models.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}

	var tokens struct {
		AccessToken string `json:"access_token"`
		Token       string `json:"token"`
	}
	resp, err := c.do(ctx, call{
		op:          "login",
		method:      http.MethodPost,
		segments:    []string{"auth", "login"},
		body:        body,
		contentType: "application/json",
	}, nil)
	if err != nil {
		return nil, err
	}
	// The body shape varies between deployments; a non-JSON body is fine.
	_ = json.Unmarshal(resp.body, &tokens)

	cred := &Credential{Cookies: map[string]string{}}
	for _, ck := range resp.cookies {
		if ck.MaxAge < 0 || ck.Value == "" {
			continue
		}
		cred.Cookies[ck.Name] = ck.Value
	}
	cred.Token = tokens.AccessToken
	if cred.Token == "" {
		cred.Token = tokens.Token
	}
	if cred.Empty() {
		return nil, fmt.Errorf("login: backend issued no session cookie or token")
	}

	c.logger.Info("Logged in to backend",
		zap.String("username", username),
		zap.Int("cookies", len(cred.Cookies)),
		zap.Bool("token", cred.Token != ""))
	return cred, nil
}

// Me returns the user the credential belongs to.
func (c *Client) Me(ctx context.Context, cred *Credential) (*models.User, error) {
	var u models.User
	if _, err := c.do(ctx, call{op: "me", method: http.MethodGet, segments: []string{"auth", "me"}, cred: cred}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout ends the backend session.
func (c *Client) Logout(ctx context.Context, cred *Credential) error {
	_, err := c.do(ctx, call{op: "logout", method: http.MethodPost, segments: []string{"auth", "logout"}, cred: cred}, nil)
	return err
}

// Reachable reports whether the backend answers HTTP at all. Any status,
// including 401 for the missing credential, counts as reachable; only a
// transport failure does not.
func (c *Client) Reachable(ctx context.Context) error {
	_, err := c.send(ctx, call{op: "reachable", method: http.MethodGet, segments: []string{"auth", "me"}})
	var se *StatusError
	if err == nil || errors.As(err, &se) {
		return nil
	}
	return err
}

// ListSentences fetches one page of sentences.
func (c *Client) ListSentences(ctx context.Context, cred *Credential, q models.SentenceQuery) (*models.SentencePage, error) {
	var page models.SentencePage
	_, err := c.do(ctx, call{
		op:       "list_sentences",
		method:   http.MethodGet,
		segments: []string{"tagging", "sentences"},
		query:    q.Values(),
		cred:     cred,
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// GetSentence fetches a sentence with its tokens.
func (c *Client) GetSentence(ctx context.Context, cred *Credential, id int) (*models.Sentence, error) {
	var s models.Sentence
	_, err := c.do(ctx, call{
		op:       "get_sentence",
		method:   http.MethodGet,
		segments: []string{"tagging", "sentences", strconv.Itoa(id)},
		cred:     cred,
	}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSentence replaces a sentence's tokens. Any 2xx status means the save
// was stored; the echoed sentence is returned when the body holds one and
// nil otherwise, in which case callers reload the sentence to see it.
func (c *Client) SaveSentence(ctx context.Context, cred *Credential, id int, req models.SaveSentenceRequest) (*models.Sentence, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, call{
		op:          "save_sentence",
		method:      http.MethodPatch,
		segments:    []string{"tagging", "sentences", strconv.Itoa(id)},
		body:        body,
		contentType: "application/json",
		cred:        cred,
	}, nil)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(resp.body)) == 0 {
		return nil, nil
	}
	var s models.Sentence
	if err := json.Unmarshal(resp.body, &s); err != nil {
		c.logger.Debug("Save response has no readable sentence",
			zap.Int("sentence_id", id),
			zap.Int("status", resp.status),
			zap.Error(err))
		return nil, nil
	}
	return &s, nil
}

// RunTagging submits a multipart body built by the ingestion form.
func (c *Client) RunTagging(ctx context.Context, cred *Credential, body io.Reader, contentType string) (*models.TaggingResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	var res models.TaggingResult
	_, err = c.do(ctx, call{
		op:          "run_tagging",
		method:      http.MethodPost,
		segments:    []string{"tagging", "run"},
		body:        data,
		contentType: contentType,
		cred:        cred,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ListUsers fetches one page of accounts.
func (c *Client) ListUsers(ctx context.Context, cred *Credential, page, pageSize int) (*models.UserPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var up models.UserPage
	_, err := c.do(ctx, call{
		op:       "list_users",
		method:   http.MethodGet,
		segments: []string{"admin", "users"},
		query:    q,
		cred:     cred,
	}, &up)
	if err != nil {
		return nil, err
	}
	return &up, nil
}

// CreateUser creates an account.
func (c *Client) CreateUser(ctx context.Context, cred *Credential, req models.CreateUserRequest) (*models.User, error) {
	return c.createUser(ctx, "create_user", []string{"admin", "users"}, cred, req)
}

// CreateAdmin creates the initial administrator. The backend accepts it
// without a credential only while no administrator exists.
func (c *Client) CreateAdmin(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	return c.createUser(ctx, "create_admin", []string{"admin", "create-admin"}, nil, req)
}

func (c *Client) createUser(ctx context.Context, op string, segments []string, cred *Credential, req models.CreateUserRequest) (*models.User, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}
	var u models.User
	_, err = c.do(ctx, call{
		op:          op,
		method:      http.MethodPost,
		segments:    segments,
		body:        body,
		contentType: "application/json",
		cred:        cred,
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, cred *Credential, id int) error {
	_, err := c.do(ctx, call{
		op:       "delete_user",
		method:   http.MethodDelete,
		segments: []string{"admin", "users", strconv.Itoa(id)},
		cred:     cred,
	}, nil)
	return err
}

// buildURL constructs a URL by parsing the base and joining path segments.
func buildURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)

	return u.String(), nil
}
