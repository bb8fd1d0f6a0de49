package mapping

import (
	"fmt"
	"strings"
	"time"
)

// Transform names accepted in FieldMapping.Transform. The registry is fixed;
// configuration selects transforms by name, it never supplies code.
const (
	TransformTrim         = "trim"
	TransformLowercase    = "lowercase"
	TransformUppercase    = "uppercase"
	TransformPhoneFormat  = "phone_format"
	TransformDateFormat   = "date_format"
	TransformTemplate     = "template"
	TransformConstant     = "constant"
	TransformDefaultValue = "default_value"
)

// TransformFunc is a pure function from a resolved source value to the
// outgoing field value. arg is the mapping's TransformArg; data is the full
// lead input for transforms that reference other fields.
type TransformFunc func(value interface{}, arg string, data map[string]interface{}) (interface{}, error)

var transforms = map[string]TransformFunc{
	TransformTrim:         transformTrim,
	TransformLowercase:    transformLowercase,
	TransformUppercase:    transformUppercase,
	TransformPhoneFormat:  transformPhone,
	TransformDateFormat:   transformDate,
	TransformTemplate:     transformTemplate,
	TransformConstant:     transformConstant,
	TransformDefaultValue: transformDefault,
}

// applyTransform runs the named transform, passing the value through
// unchanged when no transform is configured
func applyTransform(name string, value interface{}, arg string, data map[string]interface{}) (interface{}, error) {
	if name == "" {
		return value, nil
	}
	fn, ok := transforms[name]
	if !ok {
		return nil, fmt.Errorf("unknown transform: %s", name)
	}
	return fn(value, arg, data)
}

func transformTrim(value interface{}, _ string, _ map[string]interface{}) (interface{}, error) {
	return strings.TrimSpace(asString(value)), nil
}

func transformLowercase(value interface{}, _ string, _ map[string]interface{}) (interface{}, error) {
	return strings.ToLower(asString(value)), nil
}

func transformUppercase(value interface{}, _ string, _ map[string]interface{}) (interface{}, error) {
	return strings.ToUpper(asString(value)), nil
}

// transformPhone normalizes a phone number to bare digits, dropping a US
// country prefix so ten-digit NANP numbers come out uniform
func transformPhone(value interface{}, _ string, _ map[string]interface{}) (interface{}, error) {
	var digits strings.Builder
	for _, r := range asString(value) {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	s := digits.String()
	if len(s) == 11 && s[0] == '1' {
		s = s[1:]
	}
	return s, nil
}

// dateInputLayouts are the accepted input formats, tried in order
var dateInputLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// transformDate re-renders a date value in the layout given by arg
// (defaults to 2006-01-02)
func transformDate(value interface{}, arg string, _ map[string]interface{}) (interface{}, error) {
	s := strings.TrimSpace(asString(value))
	if s == "" {
		return "", nil
	}

	layout := arg
	if layout == "" {
		layout = "2006-01-02"
	}

	for _, in := range dateInputLayouts {
		if t, err := time.Parse(in, s); err == nil {
			return t.Format(layout), nil
		}
	}
	return nil, fmt.Errorf("unparseable date: %q", s)
}

// transformTemplate renders arg, substituting {{value}} with the source
// value and {{name}} with any other lead field
func transformTemplate(value interface{}, arg string, data map[string]interface{}) (interface{}, error) {
	scope := map[string]interface{}{"value": value}
	for k, v := range data {
		scope[k] = v
	}
	return RenderTemplate(arg, scope), nil
}

// transformConstant emits arg verbatim, ignoring the source value
func transformConstant(_ interface{}, arg string, _ map[string]interface{}) (interface{}, error) {
	return arg, nil
}

// transformDefault substitutes arg when the source value is absent or blank
func transformDefault(value interface{}, arg string, _ map[string]interface{}) (interface{}, error) {
	if isEmpty(value) {
		return arg, nil
	}
	return value, nil
}

// asString renders a value the way it would appear in a form payload
func asString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; render integers without a
		// trailing .000000
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// isEmpty reports whether a resolved value is missing for mapping purposes
func isEmpty(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
