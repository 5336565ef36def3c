// Package mexc implements MEXC spot (open api v2) and contract (api v1) clients.
package mexc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/chia4/cex-api/internal/exchange/rest"
)

const (
	spotOKCode     = 200
	contractOKCode = 0
)

// Scheme signs MEXC requests with HMAC-SHA256 over key + millisecond timestamp + parameters,
// and accepts a response only when HTTP is 2xx and the embedded code equals okCode.
type Scheme struct {
	name   string
	creds  rest.Credentials
	okCode int
}

func NewScheme(creds rest.Credentials, okCode int) *Scheme {
	return &Scheme{name: "mexc", creds: creds, okCode: okCode}
}

func (s *Scheme) Name() string { return s.name }

func (s *Scheme) Sign(p rest.Payload, now time.Time) http.Header {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	h := http.Header{}
	h.Set("ApiKey", s.creds.Key)
	h.Set("Request-Time", ts)
	h.Set("Signature", sign(s.creds.Secret, s.plaintext(p, ts)))
	h.Set("Content-Type", "application/json")
	return h
}

func (s *Scheme) plaintext(p rest.Payload, ts string) string {
	if p.HasBody {
		return s.creds.Key + ts + string(p.Body)
	}
	return s.creds.Key + ts + canonicalQuery(p.Query)
}

// canonicalQuery joins raw key=value pairs in lexicographic order.
func canonicalQuery(q url.Values) string {
	pairs := make([]string, 0, len(q))
	for k, vs := range q {
		for _, v := range vs {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

type envelope struct {
	Code    *int   `json:"code"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

func (s *Scheme) Classify(status int, body []byte) rest.Outcome {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return rest.Failed(status, body, fmt.Errorf("malformed response (http %d): %w", status, err))
	}
	if env.Code == nil {
		if status/100 != 2 {
			return rest.Rejected(status, body, "", "", env.message())
		}
		return rest.Failed(status, body, errors.New("response without code"))
	}
	code := strconv.Itoa(*env.Code)
	if status/100 != 2 || *env.Code != s.okCode {
		return rest.Rejected(status, body, code, "", env.message())
	}
	return rest.Succeeded(status, body)
}

func (e envelope) message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Message
}
