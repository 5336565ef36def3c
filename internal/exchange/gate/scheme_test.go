package gate

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chia4/cex-api/internal/exchange/rest"
)

var testCreds = rest.Credentials{Key: "gate-key", Secret: "gate-secret"}

func hmac512(secret, msg string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestEmptyPayloadHash(t *testing.T) {
	sum := sha512.Sum512(nil)
	require.Equal(t, hex.EncodeToString(sum[:]), emptyPayloadHash)
}

func TestSignQueryCall(t *testing.T) {
	now := time.Unix(1700000000, 0)
	q := url.Values{"currency_pair": {"BTC_USDT"}}
	p, err := rest.Request{Method: http.MethodDelete, Path: "/api/v4/spot/orders", Query: q}.Payload()
	require.NoError(t, err)

	h := NewScheme(testCreds).Sign(p, now)
	want := hmac512(testCreds.Secret, "DELETE\n/api/v4/spot/orders\ncurrency_pair=BTC_USDT\n"+emptyPayloadHash+"\n1700000000")
	require.Equal(t, want, h.Get("SIGN"))
	require.Equal(t, "gate-key", h.Get("KEY"))
	require.Equal(t, "1700000000", h.Get("Timestamp"))
}

func TestSignBodyCall(t *testing.T) {
	now := time.Unix(1700000000, 0)
	p, err := rest.Request{Method: http.MethodPost, Path: "/api/v4/futures/usdt/orders", Body: map[string]any{"contract": "BTC_USDT", "size": 1}}.Payload()
	require.NoError(t, err)

	sum := sha512.Sum512(p.Body)
	want := hmac512(testCreds.Secret, "POST\n/api/v4/futures/usdt/orders\n\n"+hex.EncodeToString(sum[:])+"\n1700000000")
	require.Equal(t, want, NewScheme(testCreds).Sign(p, now).Get("SIGN"))
}

func TestSignQueryOnlyPost(t *testing.T) {
	now := time.Unix(1700000000, 0)
	q := url.Values{"leverage": {"0"}, "cross_leverage_limit": {"10"}}
	p, err := rest.Request{Method: http.MethodPost, Path: "/api/v4/futures/usdt/positions/BTC_USDT/leverage", Query: q, QueryOnly: true}.Payload()
	require.NoError(t, err)

	want := hmac512(testCreds.Secret,
		"POST\n/api/v4/futures/usdt/positions/BTC_USDT/leverage\ncross_leverage_limit=10&leverage=0\n"+emptyPayloadHash+"\n1700000000")
	require.Equal(t, want, NewScheme(testCreds).Sign(p, now).Get("SIGN"))
}

func TestSignChangesWithTime(t *testing.T) {
	p, err := rest.Request{Method: http.MethodGet, Path: "/api/v4/spot/accounts"}.Payload()
	require.NoError(t, err)
	s := NewScheme(testCreds)
	now := time.Unix(1700000000, 0)
	require.NotEqual(t, s.Sign(p, now).Get("SIGN"), s.Sign(p, now.Add(time.Second)).Get("SIGN"))
}

func TestClassify(t *testing.T) {
	s := NewScheme(testCreds)
	require.True(t, s.Classify(200, []byte(`[]`)).OK())
	require.True(t, s.Classify(201, []byte(`{}`)).OK())

	out := s.Classify(202, []byte(`{}`))
	require.Equal(t, rest.ApplicationError, out.Kind)

	out = s.Classify(400, []byte(`{"label":"BALANCE_NOT_ENOUGH","message":"balance not enough"}`))
	require.Equal(t, rest.ApplicationError, out.Kind)
	require.Equal(t, "BALANCE_NOT_ENOUGH", out.Label)

	out = s.Classify(404, nil)
	require.True(t, out.NotFound())

	out = s.Classify(503, []byte("<html>"))
	require.Equal(t, rest.TransportFailure, out.Kind)
}
