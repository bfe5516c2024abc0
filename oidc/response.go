// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// DefaultErrorExtractor understands the two common error shapes:
//
//	{"error": "invalid_grant", "error_description": "..."}
//	{"error": {"code": 400, "message": "bad request"}}
//
// A flat error has a code of 0. A structured error's code may be a JSON number
// or a numeric string. It returns nil when "error" is absent or empty.
func DefaultErrorExtractor(data map[string]interface{}) *IdentityProviderError {
	raw, ok := data["error"]
	if !ok || isEmptyValue(raw) {
		return nil
	}
	e := &IdentityProviderError{
		Description: stringValue(data["error_description"]),
		Response:    data,
	}
	switch v := raw.(type) {
	case string:
		e.Message = v
	case map[string]interface{}:
		e.Code, _ = intValue(v["code"])
		e.Message = stringValue(v["message"])
		if e.Message == "" {
			e.Message = stringValue(v["error"])
		}
		if e.Description == "" {
			e.Description = stringValue(v["description"])
		}
		if e.Message == "" {
			e.Message = "unknown error"
		}
	default:
		e.Message = fmt.Sprint(v)
	}
	return e
}

// CheckResponse inspects a decoded provider response. It returns nil and
// leaves data untouched when the response isn't an error. Otherwise it
// returns an *IdentityProviderError built by extract (DefaultErrorExtractor
// when nil). A response with an HTTP error status but no recognizable error
// body is reported with the status text as message and the status as code.
func CheckResponse(resp *TransportResponse, data map[string]interface{}, extract ErrorExtractor) error {
	const op = "CheckResponse"
	if extract == nil {
		extract = DefaultErrorExtractor
	}
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if e := extract(data); e != nil {
		e.StatusCode = status
		if e.Response == nil {
			e.Response = data
		}
		return fmt.Errorf("%s: %w", op, e)
	}
	if status >= http.StatusBadRequest {
		msg := http.StatusText(status)
		if msg == "" {
			msg = fmt.Sprintf("status %d", status)
		}
		return fmt.Errorf("%s: %w", op, &IdentityProviderError{
			Message:    msg,
			Code:       status,
			StatusCode: status,
			Response:   data,
		})
	}
	return nil
}

// parseJSONObject decodes a response body which must be a JSON object.
func parseJSONObject(body []byte) (map[string]interface{}, error) {
	const op = "parseJSONObject"
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("%s: expected JSON body: %w: %w", op, ErrProtocol, err)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: expected JSON body, got %T: %w", op, v, ErrProtocol)
	}
	return m, nil
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case map[string]interface{}:
		return len(t) == 0
	case []interface{}:
		return len(t) == 0
	default:
		return false
	}
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// intValue converts a JSON number or numeric string to an int.
func intValue(v interface{}) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || t > math.MaxInt32 || t < math.MinInt32 {
			return 0, false
		}
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// int64Value converts a JSON number or numeric string to an int64.
func int64Value(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || math.Abs(t) > 1<<53 {
			return 0, false
		}
		return int64(t), true
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
