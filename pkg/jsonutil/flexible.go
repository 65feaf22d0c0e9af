// Package jsonutil decodes backend fields whose JSON type varies between
// deployments, such as token positions sent as numbers or strings.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, accepting
// numbers and booleans as well as strings. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	// json.Number keeps integers beyond float64 precision intact.
	var numVal json.Number
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if i, err := numVal.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := numVal.Float64(); err == nil {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return numVal.String()
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return strconv.FormatBool(boolVal)
	}

	// Fallback: return raw string representation
	return string(raw)
}

// FlexibleBoolValue reads a flag sent as true/false, 0/1, "0"/"1" or null.
// Null and empty mean false.
func FlexibleBoolValue(raw json.RawMessage) (bool, error) {
	s := strings.ToLower(strings.TrimSpace(FlexibleStringValue(raw)))
	switch s {
	case "", "false", "0":
		return false, nil
	case "true":
		return true, nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false, fmt.Errorf("invalid flag value %s", string(raw))
	}
	return n != 0, nil
}

// FlexibleString is a string field that also accepts JSON numbers and
// booleans. It always encodes as a JSON string.
type FlexibleString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexibleString) UnmarshalJSON(data []byte) error {
	*s = FlexibleString(FlexibleStringValue(data))
	return nil
}

// String returns the value.
func (s FlexibleString) String() string { return string(s) }
