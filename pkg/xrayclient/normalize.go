package xrayclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// maxDecodeDepth bounds how many string-encoded JSON layers Normalize peels off
const maxDecodeDepth = 3

// Normalize turns a panel value into an object. The value may already be an object,
// a JSON document (string or bytes), or JSON encoded inside a string several times.
// Anything that does not end up as an object yields an empty map.
func Normalize(v interface{}) map[string]interface{} {
	parsed := v
	for i := 0; i < maxDecodeDepth; i++ {
		var raw []byte
		switch t := parsed.(type) {
		case string:
			raw = []byte(t)
		case []byte:
			raw = t
		case json.RawMessage:
			raw = t
		}
		if raw == nil {
			break
		}

		next, err := decodeJSON(raw)
		if err != nil {
			break
		}
		parsed = next
	}

	if m, ok := parsed.(map[string]interface{}); ok && m != nil {
		return m
	}
	return map[string]interface{}{}
}

// decodeJSON decodes keeping numbers as json.Number so echoed values stay exact
func decodeJSON(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeList returns v as a list, decoding it first when it is a JSON string
func decodeList(v interface{}) []interface{} {
	switch t := v.(type) {
	case []interface{}:
		return t
	case string:
		parsed, err := decodeJSON([]byte(t))
		if err != nil {
			return nil
		}
		list, _ := parsed.([]interface{})
		return list
	}
	return nil
}

func stringField(m map[string]interface{}, key string) string {
	return toString(m[key])
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int, int64:
		return fmt.Sprint(t)
	}
	return ""
}

// firstString returns the first list element as a string
func firstString(v interface{}) string {
	list := decodeList(v)
	if len(list) == 0 {
		return ""
	}
	return toString(list[0])
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(t)
	case int:
		return int64(t)
	case int64:
		return t
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return i
		}
	}
	return 0
}

func boolFromAny(v interface{}, defaultVal bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case json.Number:
		return t.String() != "0"
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultVal
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
