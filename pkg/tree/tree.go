// Package tree merges and queries nested value trees addressed by dotted keys,
// the shape helm uses for chart values.
package tree

import (
	"fmt"
	"strconv"
	"strings"
)

// Values is a nested key/value tree as produced by YAML decoding.
type Values = map[string]interface{}

// Merge merges from onto onto and returns onto. Nested maps present on both
// sides are merged recursively; anything else in from replaces the value in
// onto outright. Maps taken from from are copied, so later merges into the
// result never write through to from.
func Merge(onto, from Values) Values {
	if onto == nil {
		onto = make(Values, len(from))
	}
	for key, value := range from {
		fromMap, fromIsMap := value.(Values)
		if !fromIsMap {
			onto[key] = value
			continue
		}
		ontoMap, ontoIsMap := onto[key].(Values)
		if !ontoIsMap {
			ontoMap = make(Values, len(fromMap))
		}
		onto[key] = Merge(ontoMap, fromMap)
	}
	return onto
}

// Split turns a dotted key into its path components.
func Split(key string) []string {
	return strings.Split(key, ".")
}

// FromPath builds {a: {b: {c: value}}} for the path [a b c].
func FromPath(path []string, value interface{}) Values {
	if len(path) == 1 {
		return Values{path[0]: value}
	}
	return Values{path[0]: FromPath(path[1:], value)}
}

// Set merges value into onto at the dotted key and returns onto. Entries that
// share a prefix are merged structurally.
func Set(onto Values, key string, value interface{}) Values {
	return Merge(onto, FromPath(Split(key), value))
}

// GetPath returns the value at path, or false if any component is missing or
// an intermediate value is not a map.
func GetPath(path []string, values Values) (interface{}, bool) {
	if len(path) == 0 || values == nil {
		return nil, false
	}
	value, ok := values[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		return value, true
	}
	next, isMap := value.(Values)
	if !isMap {
		return nil, false
	}
	return GetPath(path[1:], next)
}

// Get is GetPath for a dotted key.
func Get(key string, values Values) (interface{}, bool) {
	return GetPath(Split(key), values)
}

// HasPath reports whether path resolves to a value.
func HasPath(path []string, values Values) bool {
	_, ok := GetPath(path, values)
	return ok
}

// Has is HasPath for a dotted key.
func Has(key string, values Values) bool {
	return HasPath(Split(key), values)
}

// GetString returns the value at the dotted key formatted as a string. Absent
// and null values report false.
func GetString(key string, values Values) (string, bool) {
	value, ok := Get(key, values)
	if !ok || value == nil {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, true
	case Values, []interface{}:
		return "", false
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	default:
		return fmt.Sprint(v), true
	}
}

// Normalize converts map[interface{}]interface{} nodes, which YAML decoders
// emit for non-string keys, into Values so the rest of the package can treat
// every map the same way.
func Normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case map[interface{}]interface{}:
		out := make(Values, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = Normalize(item)
		}
		return out
	case Values:
		for key, item := range v {
			v[key] = Normalize(item)
		}
		return v
	case []interface{}:
		for i, item := range v {
			v[i] = Normalize(item)
		}
		return v
	default:
		return value
	}
}
