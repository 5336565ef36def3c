// Package rest holds the signing, transport and retry machinery shared by the exchange clients.
package rest

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
)

type Credentials struct {
	Key    string
	Secret string
}

// Request describes one exchange call before it is signed.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// QueryOnly sends and signs the call as a query call even when Method is POST.
	QueryOnly bool
}

func (r Request) HasBody() bool {
	return r.Method == http.MethodPost && !r.QueryOnly
}

// Payload is the encoded form of a Request; the bytes here are exactly the bytes sent.
type Payload struct {
	Method   string
	Path     string
	Query    url.Values
	RawQuery string
	Body     []byte
	HasBody  bool
}

func (r Request) Payload() (Payload, error) {
	p := Payload{
		Method: r.Method,
		Path:   r.Path,
		Query:  r.Query,
	}
	if p.Query == nil {
		p.Query = url.Values{}
	}
	if r.HasBody() {
		body := r.Body
		if body == nil {
			body = map[string]any{}
		}
		encoded, err := json.Marshal(body)
		if err != nil {
			return Payload{}, fmt.Errorf("encode %s %s body: %w", r.Method, r.Path, err)
		}
		p.Body = encoded
		p.HasBody = true
	}
	if len(p.Query) > 0 {
		p.RawQuery = p.Query.Encode()
	}
	return p, nil
}

// Scheme is one exchange family's authentication and response classification.
type Scheme interface {
	Name() string
	// Sign must be pure: the same payload and time always give the same headers.
	Sign(p Payload, now time.Time) http.Header
	Classify(status int, body []byte) Outcome
}
