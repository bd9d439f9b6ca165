package onboarding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkinc45/dev-kitchen-onboarding/clients"
	"github.com/hkinc45/dev-kitchen-onboarding/models"
)

func formWith(fields map[string]any) models.FormState {
	var f models.FormState
	for _, name := range []string{models.FieldPostalCode, models.FieldCountry} {
		if v, ok := fields[name]; ok {
			f.Fields = append(f.Fields, models.FieldDescriptor{FieldName: name, Value: v})
		}
	}
	return f
}

func TestDefaultEmailOptIn(t *testing.T) {
	zips := map[string][]clients.ZipRecord{
		"94107": {{StateCode: "CA"}},
		"97201": {{StateCode: "OR"}},
		"96161": {{StateCode: "nv"}, {StateCode: "ca"}},
	}

	tests := []struct {
		name       string
		fields     map[string]any
		want       bool
		wantLookup bool
	}{
		{name: "no postal code", fields: map[string]any{}, want: true},
		{name: "short zip", fields: map[string]any{models.FieldPostalCode: "9410"}, want: true},
		{name: "numeric zip is skipped", fields: map[string]any{models.FieldPostalCode: float64(94107)}, want: true},
		{name: "california", fields: map[string]any{models.FieldPostalCode: "94107"}, want: false, wantLookup: true},
		{name: "oregon", fields: map[string]any{models.FieldPostalCode: "97201"}, want: true, wantLookup: true},
		{name: "any CA record wins", fields: map[string]any{models.FieldPostalCode: "96161"}, want: false, wantLookup: true},
		{name: "five bytes, four characters", fields: map[string]any{models.FieldPostalCode: "941é"}, want: true},
		{name: "five characters, six bytes", fields: map[string]any{models.FieldPostalCode: "9410é"}, want: true, wantLookup: true},
		{name: "unknown zip", fields: map[string]any{models.FieldPostalCode: "00000"}, want: true, wantLookup: true},
		{
			name:       "country matched case-insensitively",
			fields:     map[string]any{models.FieldPostalCode: "94107", models.FieldCountry: "united states"},
			want:       false,
			wantLookup: true,
		},
		{name: "other country", fields: map[string]any{models.FieldPostalCode: "94107", models.FieldCountry: "Canada"}, want: true},
		{name: "null country", fields: map[string]any{models.FieldPostalCode: "94107", models.FieldCountry: nil}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{zips: zips}
			got, err := DefaultEmailOptIn(context.Background(), gw, formWith(tt.fields))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantLookup, gw.callCount("LookupZipcode") == 1)
		})
	}
}

func TestDefaultEmailOptIn_LookupFailure(t *testing.T) {
	gw := &fakeGateway{zipErr: errors.New("timeout")}
	_, err := DefaultEmailOptIn(context.Background(), gw, formWith(map[string]any{models.FieldPostalCode: "94107"}))
	require.Error(t, err)
}
