package gateway

import (
	"errors"
	"fmt"
	"strings"
)

const (
	MessageNetwork        = "Network error. Please check your internet connection and try again."
	MessageCheckoutFailed = "An error has occurred. Please try again."
	MessageLoginFailed    = "Login failed. Please check your credentials and try again."
)

// CodeNetwork is the error code recorded for transport failures.
const CodeNetwork = "network_error"

var (
	ErrLoginRejected = errors.New("login was not accepted")
	ErrEmptyResponse = errors.New("gateway returned no payload")
)

var knownCodes = map[string]string{
	"invalid_username":   "Invalid username or email address. Please check and try again.",
	"incorrect_password": "Wrong password. Please check your password and try again.",
	"invalid_email":      "Invalid email address. Please enter a valid email address.",
	"empty_username":     "Please enter username or email address.",
	"empty_password":     "Please enter password.",
	"too_many_retries":   "Too many failed attempts. Please wait a moment before trying again.",
}

// NetworkError means the request never reached the gateway or no GraphQL
// response came back.
type NetworkError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("graphql %s: network error (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("graphql %s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// GraphQLErrors are gateway-level errors. They may accompany partial data.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, ge := range e {
		msgs = append(msgs, ge.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Code is the machine-readable code of the first error. WPGraphQL reports
// auth and validation codes in the message itself.
func (e GraphQLErrors) Code() string {
	if len(e) == 0 {
		return ""
	}
	if code, ok := e[0].Extensions["code"].(string); ok && knownCodes[code] != "" {
		return code
	}
	return strings.TrimSpace(e[0].Message)
}

// FriendlyMessage maps err to text that is safe to show a shopper. Unknown
// gateway codes get fallback.
func FriendlyMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return MessageNetwork
	}
	var gqlErrs GraphQLErrors
	if errors.As(err, &gqlErrs) {
		if msg, ok := knownCodes[gqlErrs.Code()]; ok {
			return msg
		}
	}
	return fallback
}

// ErrorCode is the code recorded in logs and the checkout ledger.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return CodeNetwork
	}
	var gqlErrs GraphQLErrors
	if errors.As(err, &gqlErrs) && gqlErrs.Code() != "" {
		return gqlErrs.Code()
	}
	if errors.Is(err, ErrEmptyResponse) {
		return "empty_response"
	}
	return "unknown"
}
