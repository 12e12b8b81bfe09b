package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/compleo/internal/models"
)

func TestNormalize_BasicFields(t *testing.T) {
	p := &models.Profile{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.com",
		Phone:     "(555) 123-4567",
		Password:  "hunter2!",
		DOB:       "1990-06-05",
		City:      "Portland",
	}

	n := Normalize(p, NewDefaults())

	assert.Equal(t, "jane@example.com", n.Get(models.KeyEmail))
	assert.Equal(t, "Jane Doe", n.Get(models.KeyName), "name derived from parts")
	assert.Equal(t, "5551234567", n.Get(models.KeyPhoneRaw))
	assert.Equal(t, "(555) 123-4567", n.Get(models.KeyPhone), "formatted phone retained")
	assert.Equal(t, "hunter2!", n.Get(models.KeyPassword))
	assert.False(t, n.Defaulted[models.KeyPassword])
}

func TestNormalize_DigitsOnlyPhone(t *testing.T) {
	n := Normalize(&models.Profile{Phone: "5551234567"}, NewDefaults())

	assert.Equal(t, "5551234567", n.Get(models.KeyPhone))
	assert.Equal(t, "5551234567", n.Get(models.KeyPhoneRaw))
}

func TestNormalize_DOBForms(t *testing.T) {
	n := Normalize(&models.Profile{DOB: "1985-03-07"}, NewDefaults())

	assert.Equal(t, "1985-03-07", n.Get(models.KeyDOB))
	assert.Equal(t, "1985", n.Get(models.KeyDOBYear))
	assert.Equal(t, "03", n.Get(models.KeyDOBMonth))
	assert.Equal(t, "07", n.Get(models.KeyDOBDay))
	assert.Equal(t, "3", n.Get(models.KeyDOBMonthInt))
	assert.Equal(t, "7", n.Get(models.KeyDOBDayInt))
	assert.Equal(t, "1985", n.Get(models.KeyDOBYearInt))
}

func TestNormalize_MalformedDOB(t *testing.T) {
	n := Normalize(&models.Profile{DOB: "03/07/1985"}, NewDefaults())

	assert.False(t, n.Has(models.KeyDOBYear))
	assert.False(t, n.Has(models.KeyDOBDay))
	require.Len(t, n.Warnings, 1)
}

func TestNormalize_DOBBefore1900(t *testing.T) {
	n := Normalize(&models.Profile{DOB: "1850-01-01"}, NewDefaults())

	assert.False(t, n.Has(models.KeyDOBYear))
	require.NotEmpty(t, n.Warnings)
}

func TestNormalize_Defaults(t *testing.T) {
	n := Normalize(&models.Profile{Email: "a@b.co"}, NewDefaults())

	assert.Equal(t, "United States", n.Get(models.KeyCountry))
	assert.True(t, n.Defaulted[models.KeyCountry], "defaulted marker emitted")
	assert.Equal(t, "Mr", n.Get(models.KeyTitle))
	assert.True(t, n.Defaulted[models.KeyTitle])
	assert.Equal(t, "SecurePass123!", n.Get(models.KeyPassword))
	assert.True(t, n.Defaulted[models.KeyPassword])
}

func TestNormalize_CallerDefaultsOverride(t *testing.T) {
	defaults := Defaults{Country: "Australia", Title: "Dr", Password: "pw"}
	n := Normalize(&models.Profile{}, defaults)

	assert.Equal(t, "Australia", n.Get(models.KeyCountry))
	assert.Equal(t, "Dr", n.Get(models.KeyTitle))
}

func TestNormalize_ExtraKeysPromoted(t *testing.T) {
	p := &models.Profile{
		Extra: map[string]string{
			"username":  "jdoe",
			"not_a_key": "ignored",
			"country":   "Canada",
		},
	}

	n := Normalize(p, NewDefaults())

	assert.Equal(t, "jdoe", n.Get(models.KeyUsername))
	assert.Equal(t, "Canada", n.Get(models.KeyCountry), "source keys take precedence over defaults")
	assert.False(t, n.Defaulted[models.KeyCountry])
	assert.Empty(t, n.Values["not_a_key"])
}

func TestNormalize_Idempotent(t *testing.T) {
	p := &models.Profile{
		FirstName: "Jane",
		LastName:  "Doe",
		Phone:     "555-111-2222",
		DOB:       "1990-06-05",
	}

	first := Normalize(p, NewDefaults())

	// Re-normalize a profile reconstructed from the normalized view
	second := Normalize(&models.Profile{Extra: first.Values}, NewDefaults())

	assert.Equal(t, first.Values, second.Values)
}

func TestNormalize_NilProfile(t *testing.T) {
	n := Normalize(nil, NewDefaults())

	assert.Equal(t, "United States", n.Get(models.KeyCountry))
}

func TestAvailableKeys(t *testing.T) {
	n := Normalize(&models.Profile{Email: "a@b.co", FirstName: "A"}, Defaults{})

	keys := AvailableKeys(n)
	assert.Contains(t, keys, models.KeyEmail)
	assert.Contains(t, keys, models.KeyFirstName)
	assert.NotContains(t, keys, models.KeyCompany)
}
