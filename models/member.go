package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// MemberStatusCode is the eligibility verdict returned by the member-status lookup.
type MemberStatusCode string

const (
	StatusNotMatched   MemberStatusCode = "NOT_MATCHED"
	StatusIneligible   MemberStatusCode = "INELIGIBLE"
	StatusNotEnrolled  MemberStatusCode = "NOT_ENROLLED"
	StatusEligible     MemberStatusCode = "ELIGIBLE"
	StatusNotConsented MemberStatusCode = "NOT_CONSENTED"
)

// Consent types that cannot coexist on one member.
const (
	ConsentHIPAA       = "HIPAA"
	ConsentClientHIPAA = "CLIENT_HIPAA"
)

// MemberStatus is the decoded member-status response.
type MemberStatus struct {
	Status   MemberStatusCode `json:"status"`
	Consents []Consent        `json:"consents,omitempty"`
}

// Consent is a single consent record. ActionDt is set once the member accepted
// or declined it.
type Consent struct {
	Type     string     `json:"type"`
	Required bool       `json:"required"`
	ActionDt *Timestamp `json:"actionDt,omitempty"`
}

// Actioned reports whether the member already acted on the consent.
func (c Consent) Actioned() bool {
	return c.ActionDt != nil
}

// Timestamp is a consent action time. Epoch milliseconds and the common ISO
// 8601 layouts are parsed; any other non-null value is kept in Raw with a zero
// Time, since only the presence of the value matters to consent evaluation.
type Timestamp struct {
	time.Time
	Raw string `json:"-"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// Parsed reports whether the wire value was understood as a point in time.
func (t Timestamp) Parsed() bool {
	return t.Raw == ""
}

// UnmarshalJSON implements json.Unmarshaler. It never fails on a non-null
// value.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	*t = Timestamp{}
	text := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			text = strings.TrimSpace(s)
		}
	}
	if ms, err := strconv.ParseInt(text, 10, 64); err == nil {
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	t.Raw = string(data)
	return nil
}

// MarshalJSON encodes the timestamp as epoch milliseconds, or echoes the raw
// value when it could not be parsed.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Parsed() {
		return []byte(t.Raw), nil
	}
	return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
}
