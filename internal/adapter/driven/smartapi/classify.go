package smartapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
)

// maxDetailLen bounds the raw-response excerpt kept on errors for operator logs.
const maxDetailLen = 500

var (
	supportIDPattern = regexp.MustCompile(`(?i)support\s*id\s*(?:is)?\s*[:#]?\s*([0-9]+)`)
	whitespace       = regexp.MustCompile(`\s+`)
	stripAllTags     = bluemonday.StrictPolicy()
)

// envelope is the broker's response wrapper. Status is decoded leniently
// because some gateways send "true" as a string.
type envelope struct {
	Status    flexBool        `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(strings.Trim(string(data), `"`)) {
	case "true", "1":
		*b = true
	default:
		*b = false
	}
	return nil
}

// classify turns a completed HTTP exchange into either the unwrapped data
// payload or an *model.AuthError. The broker signals failure inconsistently
// (non-200, 200 with status false, gateway HTML), so every layer is checked.
func classify(status int, body []byte) (json.RawMessage, *model.AuthError) {
	trimmed := bytes.TrimSpace(body)

	if looksLikeHTML(trimmed) {
		return nil, edgeRejection(status, trimmed)
	}

	if status != http.StatusOK {
		return nil, httpRejection(status, trimmed)
	}

	if len(trimmed) == 0 {
		return nil, &model.AuthError{
			Kind:       model.KindMalformedResponse,
			Message:    "empty response body",
			StatusCode: status,
		}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
		return nil, &model.AuthError{
			Kind:       model.KindMalformedResponse,
			Message:    "response body is not a JSON object",
			StatusCode: status,
			Detail:     excerpt(trimmed),
			Err:        err,
		}
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, &model.AuthError{
			Kind:       model.KindMalformedResponse,
			Message:    "response envelope has unexpected field types",
			StatusCode: status,
			Detail:     excerpt(trimmed),
			Err:        err,
		}
	}

	data, hasData := fields["data"]
	if !bool(env.Status) || !hasData {
		msg := env.Message
		if msg == "" {
			msg = "request was not successful"
		}
		return nil, &model.AuthError{
			Kind:                model.KindAPIRejected,
			Message:             msg,
			Code:                env.ErrorCode,
			StatusCode:          status,
			RequiresOneTimeCode: mentionsOneTimeCode(msg),
			Detail:              excerpt(trimmed),
		}
	}

	return data, nil
}

func httpRejection(status int, body []byte) *model.AuthError {
	msg := fmt.Sprintf("HTTP %d", status)
	var code string

	var env envelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		if env.Message != "" {
			msg = env.Message
		}
		code = env.ErrorCode
	}

	return &model.AuthError{
		Kind:                model.KindAPIRejected,
		Message:             msg,
		Code:                code,
		StatusCode:          status,
		RequiresOneTimeCode: status == http.StatusUnauthorized || mentionsOneTimeCode(msg),
		Detail:              excerpt(body),
	}
}

func edgeRejection(status int, body []byte) *model.AuthError {
	ae := &model.AuthError{
		Kind:       model.KindEdgeRejected,
		Message:    "request rejected before reaching the broker API; check that this host's public IP is allow-listed",
		StatusCode: status,
		Detail:     htmlText(body),
	}
	if m := supportIDPattern.FindSubmatch(body); m != nil {
		ae.SupportID = string(m[1])
	}
	return ae
}

// looksLikeHTML matches the document root tag case-insensitively.
func looksLikeHTML(body []byte) bool {
	head := body
	if len(head) > 64 {
		head = head[:64]
	}
	lower := strings.ToLower(string(head))
	return strings.HasPrefix(lower, "<html") || strings.HasPrefix(lower, "<!doctype html")
}

func mentionsOneTimeCode(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "totp") || strings.Contains(lower, "otp")
}

// htmlText reduces a gateway page to a single line of visible text.
func htmlText(body []byte) string {
	text := html.UnescapeString(stripAllTags.Sanitize(string(body)))
	return truncate(strings.TrimSpace(whitespace.ReplaceAllString(text, " ")))
}

func excerpt(body []byte) string {
	return truncate(string(body))
}

// truncate cuts s to at most maxDetailLen bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	cut := maxDetailLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
