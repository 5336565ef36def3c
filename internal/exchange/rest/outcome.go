package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/chia4/cex-api/internal/core"
)

type Kind int

const (
	Success Kind = iota
	ApplicationError
	TransportFailure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case ApplicationError:
		return "application_error"
	case TransportFailure:
		return "transport_error"
	default:
		return "kind_" + strconv.Itoa(int(k))
	}
}

// Outcome is the classified result of one exchange call. It is always returned as a value.
type Outcome struct {
	Exchange string
	Kind     Kind
	Status   int
	Body     []byte
	Code     string
	Label    string
	Message  string
	Cause    error
}

func Succeeded(status int, body []byte) Outcome {
	return Outcome{Kind: Success, Status: status, Body: body}
}

func Rejected(status int, body []byte, code, label, message string) Outcome {
	return Outcome{
		Kind:    ApplicationError,
		Status:  status,
		Body:    body,
		Code:    code,
		Label:   label,
		Message: message,
	}
}

func Failed(status int, body []byte, cause error) Outcome {
	return Outcome{Kind: TransportFailure, Status: status, Body: body, Cause: cause}
}

func (o Outcome) OK() bool { return o.Kind == Success }

// NotFound reports an application error carrying HTTP 404.
func (o Outcome) NotFound() bool {
	return o.Kind == ApplicationError && o.Status == http.StatusNotFound
}

func (o Outcome) Err() error {
	switch o.Kind {
	case Success:
		return nil
	case ApplicationError:
		return classifyAPIError(&APIError{
			Exchange: o.Exchange,
			Status:   o.Status,
			Code:     o.Code,
			Label:    o.Label,
			Message:  o.Message,
			Body:     truncate(string(o.Body), 512),
		})
	default:
		cause := o.Cause
		if cause == nil {
			cause = errors.New("unknown transport failure")
		}
		return &TransportError{Exchange: o.Exchange, Status: o.Status, Err: cause}
	}
}

// Decode unmarshals the response body into v.
func (o Outcome) Decode(v any) error {
	if err := json.Unmarshal(o.Body, v); err != nil {
		return &TransportError{Exchange: o.Exchange, Status: o.Status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// String renders the outcome for operator logs.
func (o Outcome) String() string {
	switch o.Kind {
	case Success:
		return truncate(string(o.Body), 512)
	case ApplicationError:
		return fmt.Sprintf("status=%d body=%s", o.Status, truncate(string(o.Body), 512))
	default:
		if o.Cause != nil {
			return o.Cause.Error()
		}
		return "transport failure"
	}
}

type APIError struct {
	Exchange string
	Status   int
	Code     string
	Label    string
	Message  string
	Body     string
}

func (e *APIError) Error() string {
	b := strings.Builder{}
	b.WriteString(e.Exchange)
	b.WriteString(" api error")
	if e.Status != 0 {
		b.WriteString(" status=" + strconv.Itoa(e.Status))
	}
	if e.Code != "" {
		b.WriteString(" code=" + e.Code)
	}
	if e.Label != "" {
		b.WriteString(" label=" + e.Label)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	} else if e.Body != "" {
		b.WriteString(": " + e.Body)
	}
	return b.String()
}

type TransportError struct {
	Exchange string
	Status   int
	Err      error
}

func (e *TransportError) Error() string {
	return e.Exchange + " transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

var apiErrorLabelKinds = map[string]error{
	"balance_not_enough":   core.ErrInsufficientBalance,
	"insufficient balance": core.ErrInsufficientBalance,
	"order_not_found":      core.ErrNotFound,
	"order_not_exist":      core.ErrNotFound,
	"position_not_found":   core.ErrNotFound,
	"contract_not_found":   core.ErrNotFound,
	"invalid_param_value":  core.ErrOrderRejected,
	"order_rejected":       core.ErrOrderRejected,
}

func classifyAPIError(apiErr *APIError) error {
	kinds := make([]error, 0, 2)
	if apiErr.Status == http.StatusNotFound {
		kinds = appendErrorKind(kinds, core.ErrNotFound)
	}
	for _, key := range []string{apiErr.Label, apiErr.Message} {
		if kind, ok := apiErrorLabelKinds[normalizeAPIErrorMsg(key)]; ok {
			kinds = appendErrorKind(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return apiErr
	}
	errChain := make([]error, 0, 1+len(kinds))
	errChain = append(errChain, apiErr)
	errChain = append(errChain, kinds...)
	return errors.Join(errChain...)
}

func appendErrorKind(kinds []error, kind error) []error {
	for _, existing := range kinds {
		if existing == kind {
			return kinds
		}
	}
	return append(kinds, kind)
}

func normalizeAPIErrorMsg(msg string) string {
	return strings.ToLower(strings.TrimSpace(msg))
}

// AsAPIError extracts the APIError from err, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return nil, false
	}
	return apiErr, true
}

func IsTransport(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
