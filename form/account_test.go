package form

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hkinc45/dev-kitchen-onboarding/models"
)

func TestAccountUpdate(t *testing.T) {
	t.Parallel()

	form := models.FormState{Fields: []models.FieldDescriptor{
		{FieldName: "firstName", Value: "Ada"},
		{FieldName: "lastName", Value: "", Error: true},
		{FieldName: "gender", Value: "female"},
		{FieldName: "dateOfBirth", Value: "02/01/1990"},
		{FieldName: "postalCode", Value: "9410", Error: true},
		{FieldName: "country", Value: "United States"},
	}}

	got, err := AccountUpdate(form, []string{"firstName", "lastName", "gender", "dateOfBirth", "postalCode", "memberId"})
	if err != nil {
		t.Fatalf("account update: %v", err)
	}

	want := map[string]any{
		"firstName":   "Ada",
		"gender":      "FEMALE",
		"dateOfBirth": int64(633830400000),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestAccountUpdate_BadDate(t *testing.T) {
	t.Parallel()

	form := models.FormState{Fields: []models.FieldDescriptor{
		{FieldName: "dateOfBirth", Value: "yesterday"},
	}}
	if _, err := AccountUpdate(form, []string{"dateOfBirth"}); err == nil {
		t.Fatal("expected date parse error")
	}
}
