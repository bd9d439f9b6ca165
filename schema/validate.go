package schema

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Formats understood by Validate.
const (
	FormatEmail   = "email"
	FormatDate    = "date"
	FormatNumeric = "numeric"
)

// DateLayouts are the accepted input layouts for date fields.
var DateLayouts = []string{"2006/01/02", "01/02/2006", "2006-01-02"}

var formatValidator = validator.New()

// Options tunes a single validation call.
type Options struct {
	CheckRequired bool
}

// Result carries human readable validation messages. An empty Errors slice
// means the value is valid.
type Result struct {
	Errors []string
}

// Valid reports whether no rule failed.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Validate checks value against prop. Blank values only fail when the field
// is required; the remaining rules apply to non-blank values.
func Validate(value any, prop Property, opts Options) Result {
	var res Result
	if IsBlank(value) {
		if opts.CheckRequired {
			res.Errors = append(res.Errors, "This field is required")
		}
		return res
	}

	if prop.Type == "boolean" {
		if _, ok := value.(bool); !ok {
			res.Errors = append(res.Errors, "Must be yes or no")
		}
		return res
	}

	text := strings.TrimSpace(Stringify(value))
	length := utf8.RuneCountInString(text)
	if prop.MinLength > 0 && length < prop.MinLength {
		res.Errors = append(res.Errors, fmt.Sprintf("Must be at least %d characters", prop.MinLength))
	}
	if prop.MaxLength > 0 && length > prop.MaxLength {
		res.Errors = append(res.Errors, fmt.Sprintf("Must be at most %d characters", prop.MaxLength))
	}
	if prop.Pattern != nil && !prop.Pattern.MatchString(text) {
		msg := prop.PatternMsg
		if msg == "" {
			msg = "Has an invalid format"
		}
		res.Errors = append(res.Errors, capitalize(msg))
	}
	if len(prop.Enum) > 0 && !contains(prop.Enum, text) {
		res.Errors = append(res.Errors, "Must be one of: "+strings.Join(prop.Enum, ", "))
	}

	format := prop.Format
	if prop.Type == "number" || prop.Type == "integer" {
		format = FormatNumeric
	}
	switch format {
	case FormatEmail:
		if formatValidator.Var(text, "required,email") != nil {
			res.Errors = append(res.Errors, "Must be a valid email address")
		}
	case FormatNumeric:
		if formatValidator.Var(text, "required,numeric") != nil {
			res.Errors = append(res.Errors, "Must be a number")
		}
	case FormatDate:
		if _, err := ParseDate(text); err != nil {
			res.Errors = append(res.Errors, "Must be a valid date")
		}
	}
	return res
}

// TransformErrors joins validation messages into the helper text shown under
// a field.
func TransformErrors(errs []string) string {
	return strings.Join(errs, "; ")
}

// ParseDate parses text with the first matching layout of DateLayouts.
func ParseDate(text string) (time.Time, error) {
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("schema: %q is not a date in any of %v", text, DateLayouts)
}

// IsBlank mirrors the form's notion of an absent value: nil, an empty or
// whitespace string, false and zero.
func IsBlank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case bool:
		return !v
	case int:
		return v == 0
	case int64:
		return v == 0
	case float64:
		return v == 0
	}
	return false
}

// Stringify renders scalar values the way they appear in a text input.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
	}
	return fmt.Sprint(value)
}

func contains(values []string, needle string) bool {
	for _, v := range values {
		if v == needle {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return strings.ToUpper(string(r)) + s[size:]
}
