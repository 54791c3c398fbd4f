package validation

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"strings"

	"github.com/son-tlv/tavlui-hw1/internal/apierror"
	"github.com/son-tlv/tavlui-hw1/internal/models"
)

// Client-facing messages. Callers match on these, keep them stable.
const (
	MsgInvalidPayload = "Invalid JSON payload"
	MsgTokenRequired  = "Token is required"
	MsgInvalidToken   = "Invalid token. Access denied."
	MsgFieldsRequired = "Location and date are required fields"
)

// ParseQuery runs the auth gate and field validation over a raw request body.
// Order matters: the token is checked before any other field is looked at.
func ParseQuery(body []byte, secret string) (models.WeatherQuery, error) {
	fields, err := decodeBody(body)
	if err != nil {
		return models.WeatherQuery{}, err
	}
	token, err := CheckToken(fields, secret)
	if err != nil {
		return models.WeatherQuery{}, err
	}
	location, date, err := ValidateFields(fields)
	if err != nil {
		return models.WeatherQuery{}, err
	}
	return models.WeatherQuery{
		Token:         token,
		Location:      location,
		Date:          date,
		RequesterName: passThrough(fields["requester_name"]),
	}, nil
}

// decodeBody accepts only a non-empty JSON object.
func decodeBody(body []byte) (map[string]json.RawMessage, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, apierror.BadRequest(MsgInvalidPayload)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || len(fields) == 0 {
		return nil, apierror.BadRequest(MsgInvalidPayload)
	}
	return fields, nil
}

// CheckToken is the auth gate. A missing or null token is a 400; any other
// value that does not equal secret, including non-strings, is a 403.
func CheckToken(fields map[string]json.RawMessage, secret string) (string, error) {
	raw, ok := fields["token"]
	if !ok || isNull(raw) {
		return "", apierror.BadRequest(MsgTokenRequired)
	}
	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", apierror.Forbidden(MsgInvalidToken)
	}
	if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		return "", apierror.Forbidden(MsgInvalidToken)
	}
	return token, nil
}

// ValidateFields requires location and date to be non-blank strings.
// Values are returned as sent; only the blank check trims.
func ValidateFields(fields map[string]json.RawMessage) (location, date string, err error) {
	location, okLoc := requiredString(fields["location"])
	date, okDate := requiredString(fields["date"])
	if !okLoc || !okDate {
		return "", "", apierror.BadRequest(MsgFieldsRequired)
	}
	return location, date, nil
}

func requiredString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// passThrough keeps any JSON value as sent. Absent and null both yield nil,
// which marshals back to null.
func passThrough(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || isNull(raw) {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
