package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Kind classifies a failed call.
type Kind string

const (
	KindTransport  Kind = "transport"  // no response from the server
	KindAuth       Kind = "auth"       // 401, or no session held
	KindForbidden  Kind = "forbidden"  // 403
	KindValidation Kind = "validation" // other 4xx with a usable message
	KindConflict   Kind = "conflict"   // 409
	KindNotFound   Kind = "not_found"  // 404
	KindServer     Kind = "server"     // 5xx
)

var (
	// ErrUnauthorized matches any 401 response.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoSession is returned before any request is sent when an
	// authenticated call is made without a token.
	ErrNoSession = errors.New("not logged in")
)

// Error describes a failed API call.
type Error struct {
	Op      string // e.g. "POST /api/upload"
	Status  int    // 0 for transport failures
	Kind    Kind
	Code    string // structured error code from the body, if any
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnauthorized) true for 401 responses.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// IsAuth reports whether err means the user must log in again.
func IsAuth(err error) bool {
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNoSession) {
		return true
	}
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindAuth
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

const maxRawMessage = 300

// errorBody covers the shapes the backend emits: {"detail": ...} from the
// framework, {"error", "details", "code"} from application errors.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Details any             `json:"details"`
}

// responseError builds an *Error from a non-2xx response body. The message
// comes from known fields, then the raw text, then a generic line.
func responseError(op string, status int, body []byte) *Error {
	e := &Error{Op: op, Status: status, Kind: kindForStatus(status)}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		e.Code = eb.Code
		e.Details = eb.Details
		e.Message = firstNonEmpty(detailMessage(eb.Detail), eb.Error, eb.Message)
	}
	if e.Message == "" {
		switch text := strings.TrimSpace(string(body)); text {
		case "", "{}", "[]", "null":
		default:
			e.Message = truncate(text, maxRawMessage)
		}
	}

	if e.Message == "" {
		e.Message = fmt.Sprintf("request failed (%d)", status)
	}
	return e
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// detailMessage flattens "detail", which may be a string, an object, or a
// list of validation items with "msg" fields.
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		var msgs []string
		for _, it := range items {
			if it.Msg == "" {
				continue
			}
			if len(it.Loc) > 0 {
				msgs = append(msgs, fmt.Sprintf("%v: %s", it.Loc[len(it.Loc)-1], it.Msg))
			} else {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return firstNonEmpty(obj.Message, obj.Error, obj.Msg)
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
