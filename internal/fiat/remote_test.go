package fiat_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glosapay/glosapay/internal/errs"
	"github.com/glosapay/glosapay/internal/fiat"
	"github.com/glosapay/glosapay/internal/twofactor"
)

type sidecar struct {
	t          *testing.T
	loginCodes []string // codes received on /login, "" when absent
	want2FA    bool
	found      bool
}

func (s *sidecar) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&body))
		code, _ := body["code"].(string)
		s.loginCodes = append(s.loginCodes, code)
		if s.want2FA && code == "" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "two_factor_required"})
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	})
	mux.HandleFunc("/receipt", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"image_base64": base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		})
	})
	mux.HandleFunc("/transactions/search", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"found": s.found})
	})
	mux.HandleFunc("/close", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	})
	return mux
}

func newRemote(t *testing.T, s *sidecar, tokens *twofactor.Store) (*fiat.RemoteAutomator, func()) {
	t.Helper()
	srv := httptest.NewServer(s.handler())
	auto := fiat.NewRemoteAutomator(fiat.RemoteAutomatorConfig{URL: srv.URL}, tokens)
	return auto, srv.Close
}

func TestRemoteLoginWithoutCode(t *testing.T) {
	s := &sidecar{t: t}
	auto, done := newRemote(t, s, twofactor.NewStore())
	defer done()

	require.NoError(t, auto.Login(context.Background()))
	require.Len(t, s.loginCodes, 1)
	assert.Empty(t, s.loginCodes[0])
}

func TestRemoteLoginTwoFactorInterrupt(t *testing.T) {
	s := &sidecar{t: t, want2FA: true}
	auto, done := newRemote(t, s, twofactor.NewStore())
	defer done()

	err := auto.Login(context.Background())
	assert.True(t, errs.Is(err, fiat.ErrTwoFactorRequired))
}

func TestRemoteLoginForwardsPendingCodeOnce(t *testing.T) {
	s := &sidecar{t: t, want2FA: true}
	tokens := twofactor.NewStore()
	tokens.SetCode("123456")
	auto, done := newRemote(t, s, tokens)
	defer done()

	require.NoError(t, auto.Login(context.Background()))
	require.Len(t, s.loginCodes, 1)
	assert.Equal(t, "123456", s.loginCodes[0])
	assert.False(t, tokens.HasCode(), "code must be consumed by the login attempt")

	// The next login has no code to forward and hits the prompt again.
	err := auto.Login(context.Background())
	assert.True(t, errs.Is(err, fiat.ErrTwoFactorRequired))
	require.Len(t, s.loginCodes, 2)
	assert.Empty(t, s.loginCodes[1])
}

func TestRemoteGenerateReceiptDecodesImage(t *testing.T) {
	s := &sidecar{t: t}
	auto, done := newRemote(t, s, twofactor.NewStore())
	defer done()

	img, err := auto.GenerateReceipt(context.Background(), 125.50, "MEMO-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), img)
}

func TestRemoteFindMemoInLatest(t *testing.T) {
	for _, found := range []bool{true, false} {
		s := &sidecar{t: t, found: found}
		auto, done := newRemote(t, s, twofactor.NewStore())

		got, err := auto.FindMemoInLatest(context.Background(), "BM-QR", "MEMO-1")
		require.NoError(t, err)
		assert.Equal(t, found, got)
		done()
	}
}

func TestRemoteSurfacesSidecarFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "browser crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	auto := fiat.NewRemoteAutomator(fiat.RemoteAutomatorConfig{URL: srv.URL}, twofactor.NewStore())

	err := auto.Login(context.Background())
	require.Error(t, err)
	assert.False(t, errs.Is(err, fiat.ErrTwoFactorRequired))

	_, err = auto.GenerateReceipt(context.Background(), 1, "MEMO-1")
	assert.Error(t, err)
}
