package onboarding

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hkinc45/dev-kitchen-onboarding/clients"
	"github.com/hkinc45/dev-kitchen-onboarding/models"
)

const defaultCountry = "United States"

// ZipLookup resolves a zip code to its state records.
type ZipLookup interface {
	LookupZipcode(ctx context.Context, zipcode string) ([]clients.ZipRecord, error)
}

// DefaultEmailOptIn decides the initial marketing opt-in. Visitors are
// opted in unless a five character US zip code resolves to California. A
// missing country field counts as the United States; a missing postal code
// or a value that is not a string skips the lookup.
func DefaultEmailOptIn(ctx context.Context, lookup ZipLookup, form models.FormState) (bool, error) {
	country := defaultCountry
	if form.Has(models.FieldCountry) {
		value, ok := form.StringValue(models.FieldCountry)
		if !ok {
			return true, nil
		}
		country = value
	}
	zip, ok := form.StringValue(models.FieldPostalCode)
	if !ok || utf8.RuneCountInString(zip) != 5 || !strings.EqualFold(country, defaultCountry) {
		return true, nil
	}

	records, err := lookup.LookupZipcode(ctx, zip)
	if err != nil {
		return false, fmt.Errorf("onboarding: zip code lookup: %w", err)
	}
	for _, rec := range records {
		if strings.EqualFold(rec.StateCode, "CA") {
			return false, nil
		}
	}
	return true, nil
}
