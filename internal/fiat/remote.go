package fiat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/glosapay/glosapay/internal/errs"
	"github.com/glosapay/glosapay/internal/twofactor"
)

// statusTwoFactorRequired is how the automation sidecar reports that the
// portal prompted for a one-time code.
const statusTwoFactorRequired = "two_factor_required"

// RemoteAutomator drives the browser-automation sidecar over HTTP. The
// sidecar owns the actual browser; this client owns nothing but the
// connection and the pending one-time code handoff.
type RemoteAutomator struct {
	url        string
	httpClient *http.Client
	tokens     *twofactor.Store
}

// RemoteAutomatorConfig configures the sidecar client.
type RemoteAutomatorConfig struct {
	// URL is the base URL of the automation sidecar.
	URL string

	// Timeout for sidecar requests. Browser navigation is slow; default 90s.
	Timeout time.Duration
}

func NewRemoteAutomator(cfg RemoteAutomatorConfig, tokens *twofactor.Store) *RemoteAutomator {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	return &RemoteAutomator{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}
}

type sidecarError struct {
	Error string `json:"error"`
}

// Login establishes the portal session. When a one-time code is pending it
// is consumed here and forwarded exactly once; when the sidecar reports the
// portal's two-factor prompt and no code was available, the distinguished
// interrupt is returned.
func (a *RemoteAutomator) Login(ctx context.Context) error {
	body := map[string]any{}
	if code, ok := a.tokens.ConsumeCode(); ok {
		body["code"] = code
	}

	raw, status, err := a.post(ctx, "/login", body)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	var sidecarErr sidecarError
	if jsonErr := json.Unmarshal(raw, &sidecarErr); jsonErr == nil && sidecarErr.Error == statusTwoFactorRequired {
		return ErrTwoFactorRequired
	}
	return errs.Newf("sidecar login failed with status %d: %s", status, raw)
}

func (a *RemoteAutomator) GenerateReceipt(ctx context.Context, amount float64, memo string) ([]byte, error) {
	raw, status, err := a.post(ctx, "/receipt", map[string]any{
		"amount": amount,
		"memo":   memo,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, errs.Newf("sidecar receipt generation failed with status %d: %s", status, raw)
	}

	var resp struct {
		ImageBase64 string `json:"image_base64"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errs.Wrap(err, "failed to decode receipt response")
	}
	img, err := base64.StdEncoding.DecodeString(resp.ImageBase64)
	if err != nil {
		return nil, errs.Wrap(err, "failed to decode receipt image")
	}
	return img, nil
}

func (a *RemoteAutomator) FindMemoInLatest(ctx context.Context, marker, memo string) (bool, error) {
	raw, status, err := a.post(ctx, "/transactions/search", map[string]any{
		"marker": marker,
		"memo":   memo,
	})
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, errs.Newf("sidecar transaction search failed with status %d: %s", status, raw)
	}

	var resp struct {
		Found bool `json:"found"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, errs.Wrap(err, "failed to decode search response")
	}
	return resp.Found, nil
}

func (a *RemoteAutomator) Close(ctx context.Context) error {
	_, status, err := a.post(ctx, "/close", map[string]any{})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return errs.Newf("sidecar close failed with status %d", status)
	}
	return nil
}

func (a *RemoteAutomator) post(ctx context.Context, path string, body map[string]any) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url+path, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("sidecar request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read sidecar response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

var _ Automator = (*RemoteAutomator)(nil)
