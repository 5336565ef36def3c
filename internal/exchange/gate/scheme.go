// Package gate implements Gate.io spot and USDT-settled futures clients (api v4).
package gate

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/chia4/cex-api/internal/exchange/rest"
)

// emptyPayloadHash is the SHA-512 of the empty string, signed for calls without a body.
const emptyPayloadHash = "cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e"

// Scheme signs with HMAC-SHA512 over method, path, query, payload hash and timestamp.
type Scheme struct {
	creds rest.Credentials
}

func NewScheme(creds rest.Credentials) *Scheme {
	return &Scheme{creds: creds}
}

func (s *Scheme) Name() string { return "gate" }

func (s *Scheme) Sign(p rest.Payload, now time.Time) http.Header {
	ts := strconv.FormatInt(now.Unix(), 10)
	h := http.Header{}
	h.Set("KEY", s.creds.Key)
	h.Set("Timestamp", ts)
	h.Set("SIGN", sign(s.creds.Secret, signaturePlaintext(p, ts)))
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json")
	return h
}

func signaturePlaintext(p rest.Payload, ts string) string {
	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s", p.Method, p.Path, p.RawQuery, payloadHash(p), ts)
}

func payloadHash(p rest.Payload) string {
	if !p.HasBody {
		return emptyPayloadHash
	}
	sum := sha512.Sum512(p.Body)
	return hex.EncodeToString(sum[:])
}

func sign(secret, payload string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

type apiErrorBody struct {
	Label   string `json:"label"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// Classify accepts only HTTP 200 and 201. Error bodies carry a label and message.
func (s *Scheme) Classify(status int, body []byte) rest.Outcome {
	if status == http.StatusOK || status == http.StatusCreated {
		return rest.Succeeded(status, body)
	}
	var env apiErrorBody
	if err := json.Unmarshal(body, &env); err != nil {
		if status >= http.StatusInternalServerError {
			return rest.Failed(status, body, fmt.Errorf("http %d: %w", status, err))
		}
		return rest.Rejected(status, body, "", "", "")
	}
	msg := env.Message
	if msg == "" {
		msg = env.Detail
	}
	return rest.Rejected(status, body, "", env.Label, msg)
}
