// Package schema converts loosely typed YAML data into validated objects
// against a closed, explicitly declared schema. Fields not declared in the
// schema are rejected, and every error carries the dotted path of the
// offending value.
package schema

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the type tag of a schema field.
type Kind int

const (
	Int Kind = iota + 1
	Bool
	Float
	String
	StructKind
	List
	Map
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Float:
		return "float"
	case String:
		return "string"
	case StructKind:
		return "struct"
	case List:
		return "list"
	case Map:
		return "map"
	default:
		return "unknown"
	}
}

// Type describes the expected shape of a value. Struct is set for StructKind,
// Elem for List and Map values, Key for Map keys.
type Type struct {
	Kind   Kind
	Struct *Struct
	Elem   *Type
	Key    *Type
}

// Field is a named member of a Struct.
type Field struct {
	Name string
	Type Type
}

// Struct is a closed set of fields.
type Struct struct {
	Name   string
	Fields []Field
}

var (
	IntType    = Type{Kind: Int}
	BoolType   = Type{Kind: Bool}
	FloatType  = Type{Kind: Float}
	StringType = Type{Kind: String}
)

// StructOf returns the Type of a nested struct.
func StructOf(s *Struct) Type {
	return Type{Kind: StructKind, Struct: s}
}

// ListOf returns the Type of a list with elements of type elem.
func ListOf(elem Type) Type {
	return Type{Kind: List, Elem: &elem}
}

// MapOf returns the Type of a map from key to elem.
func MapOf(key, elem Type) Type {
	return Type{Kind: Map, Key: &key, Elem: &elem}
}

// LoadFile parses a YAML file and validates its content against s. Errors
// are prefixed with the file name.
func LoadFile(path string, s *Struct) (Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data, path, s)
}

// Parse validates YAML data against s. name is used to annotate errors.
func Parse(data []byte, name string, s *Struct) (Object, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	obj, err := Validate(s, raw)
	if err != nil {
		if schemaErr, ok := err.(*Error); ok {
			schemaErr.File = name
		}
		return nil, err
	}
	return obj, nil
}

// Validate converts raw into an Object described by s.
func Validate(s *Struct, raw interface{}) (Object, error) {
	return validateStruct(s, raw, "")
}

func validateStruct(s *Struct, raw interface{}, path string) (Object, error) {
	in, ok := asMap(raw)
	if !ok {
		return nil, errorf(path, "unexpected type, expected map, found %s", typeName(raw))
	}

	obj := make(Object, len(s.Fields))
	consumed := make(map[string]bool, len(in))
	for _, field := range s.Fields {
		value, present := in[field.Name]
		if !present {
			continue
		}
		consumed[field.Name] = true
		if value == nil {
			continue
		}
		converted, err := convert(field.Type, value, joinField(path, field.Name))
		if err != nil {
			return nil, err
		}
		obj[field.Name] = converted
	}

	var extra []string
	for key := range in {
		if !consumed[key] {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, errorf(path, "extraneous keys for %q: %s", s.Name, strings.Join(extra, ", "))
	}
	return obj, nil
}

func convert(t Type, value interface{}, path string) (interface{}, error) {
	switch t.Kind {
	case Int:
		return toInt(value, path)
	case Bool:
		return toBool(value, path)
	case Float:
		return toFloat(value, path)
	case String:
		return toString(value, path)
	case StructKind:
		return validateStruct(t.Struct, value, path)
	case List:
		list, ok := value.([]interface{})
		if !ok {
			return nil, errorf(path, "value is not a list, found %s", typeName(value))
		}
		out := make([]interface{}, len(list))
		for i, item := range list {
			converted, err := convert(*t.Elem, item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case Map:
		in, ok := asMap(value)
		if !ok {
			return nil, errorf(path, "value is not a map, found %s", typeName(value))
		}
		out := make(map[string]interface{}, len(in))
		for key, item := range in {
			itemPath := fmt.Sprintf("%s[%s]", path, key)
			convertedKey, err := convert(*t.Key, key, itemPath)
			if err != nil {
				return nil, err
			}
			converted, err := convert(*t.Elem, item, itemPath)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(convertedKey)] = converted
		}
		return out, nil
	default:
		return nil, errorf(path, "unsupported schema kind %d", t.Kind)
	}
}

func toInt(value interface{}, path string) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, errorf(path, "value %d is out of range", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, errorf(path, "value %v is not an integer", v)
		}
		return int64(v), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errorf(path, "value %q is not an integer", v)
		}
		return i, nil
	default:
		return 0, errorf(path, "expected int, found %s", typeName(value))
	}
}

func toBool(value interface{}, path string) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, errorf(path, "value %q is not a boolean", v)
		}
		return b, nil
	default:
		return false, errorf(path, "expected bool, found %s", typeName(value))
	}
}

func toFloat(value interface{}, path string) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, errorf(path, "value %q is not a number", v)
		}
		return f, nil
	default:
		return 0, errorf(path, "expected float, found %s", typeName(value))
	}
}

func toString(value interface{}, path string) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case map[string]interface{}, map[interface{}]interface{}, []interface{}, nil:
		return "", errorf(path, "expected string, found %s", typeName(value))
	default:
		return fmt.Sprint(v), nil
	}
}

func asMap(value interface{}) (map[string]interface{}, bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		return v, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = item
		}
		return out, true
	default:
		return nil, false
	}
}

func typeName(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case map[string]interface{}, map[interface{}]interface{}:
		return "map"
	case []interface{}:
		return "list"
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int64, uint64:
		return "int"
	case float64:
		return "float"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func joinField(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
