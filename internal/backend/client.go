package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tiketloka-storefront/internal/domain"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultHealthPath = "/up"
	maxBodyBytes      = 4 << 20
)

// Config configures a Client.
type Config struct {
	// BaseURL is the backend origin, e.g. "https://api.tiketloka.web.id".
	BaseURL string
	// HTTPClient defaults to a client with a 15s timeout.
	HTTPClient *http.Client
	// HealthPath is probed by Ping. Defaults to "/up".
	HealthPath string
	Logger     *log.Logger
	// OnUnauthorized is called with the bearer token of every request the
	// backend answered with 401. It is the global "session expired" signal.
	OnUnauthorized func(token string)
}

// Client is a typed client for the storefront REST API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	healthPath     string
	logger         *log.Logger
	onUnauthorized func(token string)
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend: base URL required")
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("backend: invalid base URL %q", cfg.BaseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	health := cfg.HealthPath
	if health == "" {
		health = defaultHealthPath
	}
	return &Client{
		baseURL:        base,
		httpClient:     httpClient,
		healthPath:     health,
		logger:         cfg.Logger,
		onUnauthorized: cfg.OnUnauthorized,
	}, nil
}

// SetUnauthorizedHandler replaces the 401 hook. It is meant to be called
// once during wiring, before the client is shared.
func (c *Client) SetUnauthorizedHandler(fn func(token string)) {
	c.onUnauthorized = fn
}

// BaseURL returns the normalised backend origin.
func (c *Client) BaseURL() string { return c.baseURL }

type request struct {
	method  string
	path    string
	token   string
	body    any
	query   url.Values
	headers map[string]string
}

// do executes req and returns the response body of a 2xx answer. Every
// other outcome is an *APIError classified into the domain taxonomy.
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("backend: encode %s %s: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("backend: build %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, networkError(req.method, req.path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, networkError(req.method, req.path, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return payload, nil
	}

	apiErr := classify(req.method, req.path, resp.StatusCode, payload)
	if resp.StatusCode == http.StatusUnauthorized && req.token != "" && c.onUnauthorized != nil {
		c.onUnauthorized(req.token)
	}
	c.logf("%s %s -> %d %s", req.method, req.path, resp.StatusCode, apiErr.Message)
	return nil, apiErr
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// AuthResult is what the login-style endpoints return.
type AuthResult struct {
	Token string
	User  domain.User
}

func decodeAuth(method, path string, body []byte) (AuthResult, error) {
	raw, err := unwrapData(body)
	if err != nil {
		return AuthResult{}, malformed(method, path, err)
	}
	var w wireAuth
	if err := lenientUnmarshal(raw, &w); err != nil {
		return AuthResult{}, malformed(method, path, err)
	}
	token := w.AccessToken
	if token == "" {
		token = w.Token
	}
	if token == "" {
		return AuthResult{}, malformed(method, path, errors.New("missing access_token"))
	}
	return AuthResult{Token: token, User: w.User.toDomain()}, nil
}

// Me fetches the identity bound to token.
func (c *Client) Me(ctx context.Context, token string) (domain.User, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/api/user", token: token})
	if err != nil {
		return domain.User{}, err
	}
	raw, err := unwrapData(body)
	if err != nil {
		return domain.User{}, malformed(http.MethodGet, "/api/user", err)
	}
	var w wireUser
	if err := lenientUnmarshal(raw, &w); err != nil {
		return domain.User{}, malformed(http.MethodGet, "/api/user", err)
	}
	return w.toDomain(), nil
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	body, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/login",
		body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return AuthResult{}, err
	}
	return decodeAuth(http.MethodPost, "/api/login", body)
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	PhoneNumber          string `json:"phone_number"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// Register creates an account and returns its first token.
func (c *Client) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	body, err := c.do(ctx, request{method: http.MethodPost, path: "/api/register", body: in})
	if err != nil {
		return AuthResult{}, err
	}
	return decodeAuth(http.MethodPost, "/api/register", body)
}

// OAuthCallback completes an identity-provider login with the code it
// returned to the storefront.
func (c *Client) OAuthCallback(ctx context.Context, provider, code string) (AuthResult, error) {
	path := "/api/auth/" + url.PathEscape(provider) + "/callback"
	body, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   path,
		query:  url.Values{"code": {code}},
	})
	if err != nil {
		return AuthResult{}, err
	}
	return decodeAuth(http.MethodGet, path, body)
}

// Logout revokes token server-side.
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.do(ctx, request{method: http.MethodPost, path: "/api/logout", token: token})
	return err
}

// ForgotPassword asks the backend to mail a reset link.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/forgot-password",
		body:   map[string]string{"email": email},
	})
	return err
}

// ResetPasswordInput is the password reset form.
type ResetPasswordInput struct {
	Token                string `json:"token"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// ResetPassword sets a new password using a mailed reset token.
func (c *Client) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	_, err := c.do(ctx, request{method: http.MethodPost, path: "/api/reset-password", body: in})
	return err
}

// Cart fetches the authoritative cart.
func (c *Client) Cart(ctx context.Context, token string) ([]domain.CartLineItem, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/api/cart", token: token})
	if err != nil {
		return nil, err
	}
	items, skipped, err := decodeCartItems(body)
	if err != nil {
		return nil, malformed(http.MethodGet, "/api/cart", err)
	}
	if skipped > 0 {
		c.logf("cart: skipped %d undecodable line items", skipped)
	}
	return items, nil
}

// AddCartInput is the body of an add-to-cart call.
type AddCartInput struct {
	DestinationID int64   `json:"destination_id"`
	Quantity      int     `json:"quantity"`
	VisitDate     string  `json:"visit_date"`
	Addons        []int64 `json:"addons"`
}

// AddToCart creates a line item. The returned item is nil when the backend
// does not echo it.
func (c *Client) AddToCart(ctx context.Context, token string, in AddCartInput) (*domain.CartLineItem, error) {
	if in.Addons == nil {
		in.Addons = []int64{}
	}
	body, err := c.do(ctx, request{method: http.MethodPost, path: "/api/cart", token: token, body: in})
	if err != nil {
		return nil, err
	}
	return decodeCartItem(body), nil
}

// UpdateCartInput is the body of an update call; nil fields are omitted.
type UpdateCartInput struct {
	Quantity  *int     `json:"quantity,omitempty"`
	VisitDate *string  `json:"visit_date,omitempty"`
	Addons    *[]int64 `json:"addons,omitempty"`
}

// UpdateCartItem changes a line item.
func (c *Client) UpdateCartItem(ctx context.Context, token string, id int64, in UpdateCartInput) (*domain.CartLineItem, error) {
	body, err := c.do(ctx, request{method: http.MethodPut, path: cartItemPath(id), token: token, body: in})
	if err != nil {
		return nil, err
	}
	return decodeCartItem(body), nil
}

// RemoveCartItem deletes a line item.
func (c *Client) RemoveCartItem(ctx context.Context, token string, id int64) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: cartItemPath(id), token: token})
	return err
}

// ClearCart deletes every line item.
func (c *Client) ClearCart(ctx context.Context, token string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: "/api/cart", token: token})
	return err
}

func cartItemPath(id int64) string {
	return "/api/cart/" + strconv.FormatInt(id, 10)
}

// CheckoutInput is one checkout submission.
type CheckoutInput struct {
	CartIDs        []int64
	PaymentMethod  domain.PaymentMethod
	IdempotencyKey string
}

// Checkout books the given cart lines and returns the booking code.
func (c *Client) Checkout(ctx context.Context, token string, in CheckoutInput) (string, error) {
	req := request{
		method: http.MethodPost,
		path:   "/api/checkout",
		token:  token,
		body: struct {
			CartIDs       []int64 `json:"cart_ids"`
			PaymentMethod string  `json:"payment_method"`
		}{CartIDs: in.CartIDs, PaymentMethod: string(in.PaymentMethod)},
	}
	if in.IdempotencyKey != "" {
		req.headers = map[string]string{"Idempotency-Key": in.IdempotencyKey}
	}
	body, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	raw, err := unwrapData(body)
	if err != nil {
		return "", malformed(req.method, req.path, err)
	}
	var w wireCheckout
	if err := lenientUnmarshal(raw, &w); err != nil {
		return "", malformed(req.method, req.path, err)
	}
	if w.BookingCode == "" {
		// the envelope may carry the code next to data rather than inside it
		var top wireCheckout
		_ = lenientUnmarshal(body, &top)
		w.BookingCode = top.BookingCode
	}
	if w.BookingCode == "" {
		return "", malformed(req.method, req.path, errors.New("missing booking_code"))
	}
	return w.BookingCode, nil
}

// Booking fetches a booking with its tickets.
func (c *Client) Booking(ctx context.Context, token, code string) (domain.BookingDetail, error) {
	path := "/api/bookings/" + url.PathEscape(code)
	body, err := c.do(ctx, request{method: http.MethodGet, path: path, token: token})
	if err != nil {
		return domain.BookingDetail{}, err
	}
	raw, err := unwrapData(body)
	if err != nil {
		return domain.BookingDetail{}, malformed(http.MethodGet, path, err)
	}
	var w wireBooking
	if err := lenientUnmarshal(raw, &w); err != nil {
		return domain.BookingDetail{}, malformed(http.MethodGet, path, err)
	}
	if w.BookingCode == "" {
		w.BookingCode = code
	}
	return w.toDomain(), nil
}

// Dashboard fetches admin statistics, optionally bounded by visit dates.
func (c *Client) Dashboard(ctx context.Context, token string, from, to time.Time) (domain.DashboardStats, error) {
	query := url.Values{}
	if !from.IsZero() {
		query.Set("start_date", from.Format(domain.DateLayout))
	}
	if !to.IsZero() {
		query.Set("end_date", to.Format(domain.DateLayout))
	}
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/api/admin/dashboard", token: token, query: query})
	if err != nil {
		return domain.DashboardStats{}, err
	}
	raw, err := unwrapData(body)
	if err != nil {
		return domain.DashboardStats{}, malformed(http.MethodGet, "/api/admin/dashboard", err)
	}
	var w wireDashboard
	if err := lenientUnmarshal(raw, &w); err != nil {
		return domain.DashboardStats{}, malformed(http.MethodGet, "/api/admin/dashboard", err)
	}
	return domain.DashboardStats{
		TotalRevenue:      int64(w.TotalRevenue),
		TotalBookings:     int64(w.TotalBookings),
		TotalTicketsSold:  int64(w.TotalTicketsSold),
		TotalDestinations: int64(w.TotalDestinations),
	}, nil
}

// Ping probes the backend health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, request{method: http.MethodGet, path: c.healthPath})
	return err
}
