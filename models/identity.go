package models

import "strings"

// Well-known identity field names shared by the account and demographics payloads.
const (
	FieldEmail      = "email"
	FieldEmails     = "emails"
	FieldPostalCode = "postalCode"
	FieldCountry    = "country"
	FieldGender     = "gender"
	FieldDOB        = "dateOfBirth"
)

// IdentitySource is a sparse mapping of candidate field values for a visitor.
// Both the SSO account info and the primal demographics payloads are decoded
// into this shape.
type IdentitySource map[string]any

// IsEmpty reports whether the source carries no values at all.
func (s IdentitySource) IsEmpty() bool {
	return len(s) == 0
}

// Value returns the raw value stored for field, or nil.
func (s IdentitySource) Value(field string) any {
	if s == nil {
		return nil
	}
	return s[field]
}

// Email returns the singular email value, trimmed. Non-string values are ignored.
func (s IdentitySource) Email() string {
	email, _ := s.Value(FieldEmail).(string)
	return strings.TrimSpace(email)
}

// Emails returns the entries of the "emails" list in order. Entries may be
// plain strings or objects carrying an "email" key; anything else is reported
// as an empty string so callers can skip it without losing positions.
func (s IdentitySource) Emails() []string {
	raw, ok := s.Value(FieldEmails).([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		switch v := entry.(type) {
		case string:
			out = append(out, strings.TrimSpace(v))
		case map[string]any:
			email, _ := v[FieldEmail].(string)
			out = append(out, strings.TrimSpace(email))
		default:
			out = append(out, "")
		}
	}
	return out
}

// Clone returns a shallow copy of the source.
func (s IdentitySource) Clone() IdentitySource {
	if s == nil {
		return IdentitySource{}
	}
	out := make(IdentitySource, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// InboundSSO describes the external identity provider redirect a visitor
// arrived through. A nil descriptor means the visitor did not arrive via SSO.
type InboundSSO map[string]any
