package schema

import "fmt"

// Object is a validated struct value. Field values are int64, bool, float64,
// string, Object, []interface{} or map[string]interface{} depending on the
// declared kind. Absent fields have no entry.
type Object map[string]interface{}

// Has reports whether the field was present and non-null in the input.
func (o Object) Has(name string) bool {
	_, ok := o[name]
	return ok
}

// String returns a String field.
func (o Object) String(name string) (string, bool) {
	s, ok := o[name].(string)
	return s, ok
}

// StringOr returns a String field, or def when it is absent.
func (o Object) StringOr(name, def string) string {
	if s, ok := o.String(name); ok {
		return s
	}
	return def
}

// Bool returns a Bool field; absent reads as false.
func (o Object) Bool(name string) bool {
	b, _ := o[name].(bool)
	return b
}

// Int returns an Int field.
func (o Object) Int(name string) (int64, bool) {
	i, ok := o[name].(int64)
	return i, ok
}

// Strings returns a List-of-String field.
func (o Object) Strings(name string) []string {
	list, _ := o[name].([]interface{})
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Struct returns a nested struct field.
func (o Object) Struct(name string) (Object, bool) {
	obj, ok := o[name].(Object)
	return obj, ok
}

// Structs returns a List-of-Struct field.
func (o Object) Structs(name string) []Object {
	list, _ := o[name].([]interface{})
	out := make([]Object, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(Object); ok {
			out = append(out, obj)
		}
	}
	return out
}

// Error is a schema violation at Path in File.
type Error struct {
	File    string
	Path    string
	Message string
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("at %q: %s", e.Path, msg)
	}
	if e.File != "" {
		msg = fmt.Sprintf("%s: %s", e.File, msg)
	}
	return msg
}

func errorf(path, format string, args ...interface{}) *Error {
	return &Error{Path: path, Message: fmt.Sprintf(format, args...)}
}
