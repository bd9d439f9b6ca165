package clients

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hkinc45/dev-kitchen-onboarding/errors"
	"github.com/hkinc45/dev-kitchen-onboarding/models"
)

// TokenExchanger trades the visitor's token for one accepted by the remote API.
type TokenExchanger func(ctx context.Context, subjectToken string) (string, error)

// HTTPOption configures an HTTPGateway.
type HTTPOption func(*HTTPGateway)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(g *HTTPGateway) {
		g.http = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) HTTPOption {
	return func(g *HTTPGateway) {
		g.logger = logger
	}
}

// WithTokenExchanger exchanges the bearer token before each remote call.
func WithTokenExchanger(exchange TokenExchanger) HTTPOption {
	return func(g *HTTPGateway) {
		g.exchange = exchange
	}
}

// WithBearerToken seeds the visitor token.
func WithBearerToken(token string) HTTPOption {
	return func(g *HTTPGateway) {
		g.token = token
	}
}

// HTTPGateway implements Gateway over JSON HTTP for a single visitor.
type HTTPGateway struct {
	baseURL  string
	http     *http.Client
	logger   *zap.Logger
	exchange TokenExchanger

	mu            sync.Mutex
	token         string
	exchangedFor  string
	exchangedWith string
}

var _ Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway returns a gateway rooted at baseURL.
func NewHTTPGateway(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	g := &HTTPGateway{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetBearerToken replaces the visitor token used for subsequent calls.
func (g *HTTPGateway) SetBearerToken(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.token = token
}

func (g *HTTPGateway) HasSession(ctx context.Context) (bool, error) {
	if g.bearer() == "" {
		return false, nil
	}
	var session map[string]any
	err := g.do(ctx, http.MethodGet, "/session", nil, nil, &session)
	if err != nil {
		var apiErr *errors.APIError
		if stderrors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusNotFound) {
			return false, nil
		}
		return false, err
	}
	return len(session) > 0, nil
}

// ClearSession forgets the visitor token. No remote call is made.
func (g *HTTPGateway) ClearSession(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.token = ""
	g.exchangedFor = ""
	g.exchangedWith = ""
	return nil
}

func (g *HTTPGateway) InboundSSO(ctx context.Context) (models.InboundSSO, error) {
	var inbound models.InboundSSO
	if err := g.do(ctx, http.MethodGet, "/session/inboundSSO", nil, nil, &inbound); err != nil {
		return nil, err
	}
	if len(inbound) == 0 {
		return nil, nil
	}
	return inbound, nil
}

func (g *HTTPGateway) GetAccount(ctx context.Context) (models.IdentitySource, error) {
	account := models.IdentitySource{}
	if err := g.do(ctx, http.MethodGet, "/account", nil, nil, &account); err != nil {
		return nil, err
	}
	return account, nil
}

func (g *HTTPGateway) GetPrimalDemographics(ctx context.Context) (models.IdentitySource, error) {
	demographics := models.IdentitySource{}
	if err := g.do(ctx, http.MethodGet, "/account/primalDemographics", nil, nil, &demographics); err != nil {
		return nil, err
	}
	return demographics, nil
}

func (g *HTTPGateway) UpdateAccount(ctx context.Context, fields map[string]any) error {
	return g.do(ctx, http.MethodPost, "/account", nil, fields, nil)
}

// EmailExists reports false for an empty email without calling the remote.
func (g *HTTPGateway) EmailExists(ctx context.Context, email string) (bool, error) {
	if strings.TrimSpace(email) == "" {
		return false, nil
	}
	var out struct {
		Result bool `json:"result"`
	}
	if err := g.do(ctx, http.MethodPost, "/remote/api/emailExists", nil, map[string]string{"email": email}, &out); err != nil {
		return false, err
	}
	return out.Result, nil
}

func (g *HTTPGateway) LookupZipcode(ctx context.Context, zipcode string) ([]ZipRecord, error) {
	var records []ZipRecord
	query := url.Values{"zipcode": []string{zipcode}}
	if err := g.do(ctx, http.MethodGet, "/remote/api/lookupZipcode", query, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (g *HTTPGateway) GetMemberStatus(ctx context.Context, cacheBuster string) (models.MemberStatus, error) {
	var status models.MemberStatus
	query := url.Values{"_cb": []string{cacheBuster}}
	if err := g.do(ctx, http.MethodGet, "/remote/api/getMemberStatus", query, nil, &status); err != nil {
		return models.MemberStatus{}, err
	}
	return status, nil
}

func (g *HTTPGateway) PostAnalytics(ctx context.Context, event string) error {
	return g.do(ctx, http.MethodPost, "/analytics", nil, map[string]string{"event": event}, nil)
}

func (g *HTTPGateway) bearer() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token
}

// authorization resolves the token to send, exchanging it once per subject.
func (g *HTTPGateway) authorization(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token == "" || g.exchange == nil {
		return g.token, nil
	}
	if g.exchangedFor == g.token && g.exchangedWith != "" {
		return g.exchangedWith, nil
	}
	exchanged, err := g.exchange(ctx, g.token)
	if err != nil {
		return "", fmt.Errorf("gateway: token exchange: %w", err)
	}
	g.exchangedFor = g.token
	g.exchangedWith = exchanged
	return exchanged, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, query url.Values, payload any, out any) error {
	endpoint := g.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("gateway: marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("gateway: create %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := g.authorization(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	g.logger.Debug("Calling remote gateway", zap.String("method", method), zap.String("path", path))
	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	return HandleResponse(resp, out, g.logger)
}
