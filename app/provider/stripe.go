package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com"

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	APIBaseURL                string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
	RetryAttempts             uint
	RetryDelay                time.Duration
}

type StripeProvider struct {
	cfg    StripeConfig
	client *http.Client
}

type stripeStatusError struct {
	path       string
	statusCode int
	body       string
}

func (e *stripeStatusError) Error() string {
	return fmt.Sprintf("stripe request failed: path=%s status=%d body=%s", e.path, e.statusCode, e.body)
}

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.SignatureToleranceSeconds <= 0 {
		cfg.SignatureToleranceSeconds = 300
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultStripeAPIBaseURL
	}

	return &StripeProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, input *CheckoutInput) (*CheckoutSession, error) {
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is not configured")
	}

	purchaseID := strconv.FormatUint(input.PurchaseID, 10)
	courseID := strconv.FormatUint(input.CourseID, 10)

	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("payment_method_types[0]", "card")
	values.Set("line_items[0][quantity]", "1")
	values.Set("line_items[0][price_data][currency]", strings.ToLower(input.Currency))
	values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(input.Amount, 10))
	values.Set("line_items[0][price_data][product_data][name]", productName(input))
	if s := strings.TrimSpace(input.ThumbnailURL); s != "" {
		values.Set("line_items[0][price_data][product_data][images][0]", s)
	}
	values.Set("success_url", input.SuccessURL)
	values.Set("cancel_url", input.CancelURL)
	values.Set("client_reference_id", purchaseID)
	values.Set("metadata[course_id]", courseID)
	values.Set("metadata[user_id]", input.UserID)
	values.Set("metadata[purchase_id]", purchaseID)

	body, err := p.postForm(ctx, "/v1/checkout/sessions", values, uuid.NewString())
	if err != nil {
		return nil, err
	}

	session, err := parseCheckoutSession(body)
	if err != nil {
		return nil, err
	}
	if session.ID == "" || session.URL == "" {
		return nil, errors.New("stripe checkout session id or url missing")
	}

	return session, nil
}

// GetCheckoutSession retries network failures and 5xx/429 answers until the
// attempts or the context deadline run out.
func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is not configured")
	}

	var session *CheckoutSession
	var lastErr error
	err := retry.Do(
		func() error {
			session, lastErr = p.fetchCheckoutSession(ctx, sessionID)
			return lastErr
		},
		retry.Context(ctx),
		retry.Attempts(p.cfg.RetryAttempts),
		retry.Delay(p.cfg.RetryDelay),
		retry.MaxDelay(2*time.Second),
		retry.RetryIf(isRetryableStripeError),
	)
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, lastErr
	}

	return session, nil
}

func (p *StripeProvider) VerifyAndParseWebhook(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: webhook secret is not configured", ErrInvalidSignature)
	}
	if !verifyStripeSignature(payload, signature, p.cfg.WebhookSecret, p.cfg.SignatureToleranceSeconds) {
		return nil, ErrInvalidSignature
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	result := &WebhookEvent{
		ID:   strings.TrimSpace(event.ID),
		Type: strings.TrimSpace(event.Type),
	}
	if strings.HasPrefix(result.Type, "checkout.session.") && len(event.Data.Object) > 0 {
		session, err := parseCheckoutSession(event.Data.Object)
		if err != nil {
			return nil, err
		}
		result.Session = session
	}

	return result, nil
}

func (p *StripeProvider) fetchCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIBaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)

	body, err := p.do(req, path)
	if err != nil {
		var statusErr *stripeStatusError
		if errors.As(err, &statusErr) && statusErr.statusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, err
	}

	return parseCheckoutSession(body)
}

func (p *StripeProvider) postForm(ctx context.Context, path string, values url.Values, idempotencyKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIBaseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	return p.do(req, path)
}

func (p *StripeProvider) do(req *http.Request, path string) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &stripeStatusError{path: path, statusCode: resp.StatusCode, body: string(body)}
	}

	return body, nil
}

func isRetryableStripeError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *stripeStatusError
	if errors.As(err, &statusErr) {
		return statusErr.statusCode >= 500 || statusErr.statusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func parseCheckoutSession(body []byte) (*CheckoutSession, error) {
	var payload struct {
		ID                string            `json:"id"`
		URL               *string           `json:"url"`
		ClientReferenceID *string           `json:"client_reference_id"`
		Status            string            `json:"status"`
		PaymentStatus     string            `json:"payment_status"`
		AmountTotal       int64             `json:"amount_total"`
		Currency          string            `json:"currency"`
		Metadata          map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	session := &CheckoutSession{
		ID:            strings.TrimSpace(payload.ID),
		Status:        payload.Status,
		PaymentStatus: payload.PaymentStatus,
		AmountTotal:   payload.AmountTotal,
		Currency:      payload.Currency,
		Metadata:      payload.Metadata,
	}
	if payload.URL != nil {
		session.URL = strings.TrimSpace(*payload.URL)
	}
	if payload.ClientReferenceID != nil {
		session.ClientReferenceID = strings.TrimSpace(*payload.ClientReferenceID)
	}
	if session.Metadata == nil {
		session.Metadata = map[string]string{}
	}

	return session, nil
}

func productName(input *CheckoutInput) string {
	name := strings.TrimSpace(input.CourseTitle)
	if name == "" {
		return "course-" + strconv.FormatUint(input.CourseID, 10)
	}
	return name
}

func verifyStripeSignature(payload []byte, signatureHeader string, webhookSecret string, toleranceSeconds int64) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(webhookSecret) == "" {
		return false
	}

	parts := strings.Split(signatureHeader, ",")
	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now().Unix()
	if now-tsUnix > toleranceSeconds || tsUnix-now > toleranceSeconds {
		return false
	}

	expected := computeStripeSignature(payload, ts, webhookSecret)
	for _, sig := range v1 {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}

func computeStripeSignature(payload []byte, ts string, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(ts + "."))
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}

// SignPayload builds a Stripe-Signature header value for payload.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(computeStripeSignature(payload, ts, secret))
}

// BuildForwardPayload wraps a raw delivery the way the gateway forwards it.
func BuildForwardPayload(payload []byte, signature string) []byte {
	message := map[string]string{
		"payload":   string(payload),
		"signature": signature,
	}
	encoded, _ := json.Marshal(message)
	return bytes.TrimSpace(encoded)
}
