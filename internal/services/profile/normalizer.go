package profile

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/ternarybob/compleo/internal/models"
)

// Defaults are the values applied to canonical keys that the source profile
// leaves empty. Callers may override any of them.
type Defaults struct {
	Country  string
	Title    string
	Password string
}

// NewDefaults returns the standard default set.
func NewDefaults() Defaults {
	return Defaults{
		Country:  "United States",
		Title:    "Mr",
		Password: "SecurePass123!",
	}
}

// Normalize flattens a profile into the canonical key set, derives compound
// values, and applies defaults for missing keys. Normalization never fails;
// malformed dates yield absent dob_* keys and a warning. Normalizing an
// already-normalized profile is idempotent.
func Normalize(p *models.Profile, defaults Defaults) *models.NormalizedProfile {
	n := &models.NormalizedProfile{
		Values:    make(map[string]string),
		Defaulted: make(map[string]bool),
	}
	if p == nil {
		applyDefaults(n, defaults)
		return n
	}

	set := func(key, value string) {
		if value != "" {
			n.Values[key] = value
		}
	}

	set(models.KeyEmail, p.Email)
	set(models.KeyFirstName, p.FirstName)
	set(models.KeyLastName, p.LastName)
	set(models.KeyName, p.Name)
	set(models.KeyPassword, p.Password)
	set(models.KeyTitle, p.Title)
	set(models.KeyGender, p.Gender)
	set(models.KeyAddress1, p.Address1)
	set(models.KeyAddress2, p.Address2)
	set(models.KeyCity, p.City)
	set(models.KeyState, p.State)
	set(models.KeyZip, p.Zip)
	set(models.KeyCountry, p.Country)
	set(models.KeyCompany, p.Company)
	set(models.KeyWebsite, p.Website)
	set(models.KeyUsername, p.Username)

	// Flatten one level of extras: canonical keys are promoted, with source
	// keys taking precedence over anything already derived
	for key, value := range p.Extra {
		if models.IsCanonicalKey(key) && value != "" {
			n.Values[key] = value
		}
	}

	// Derive name from parts if absent
	if n.Values[models.KeyName] == "" {
		first := n.Values[models.KeyFirstName]
		last := n.Values[models.KeyLastName]
		if first != "" && last != "" {
			n.Values[models.KeyName] = first + " " + last
		} else if first != "" {
			n.Values[models.KeyName] = first
		} else if last != "" {
			n.Values[models.KeyName] = last
		}
	}

	normalizePhone(n, p.Phone)
	normalizeDOB(n, p.DOB)
	applyDefaults(n, defaults)

	return n
}

// normalizePhone extracts decimal digits into phone_raw and keeps the
// formatted value in phone when one was explicitly supplied.
func normalizePhone(n *models.NormalizedProfile, phone string) {
	if phone == "" {
		if v, ok := n.Values[models.KeyPhone]; ok && n.Values[models.KeyPhoneRaw] == "" {
			phone = v
		} else {
			return
		}
	}

	var digits strings.Builder
	hasNonDigit := false
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		} else {
			hasNonDigit = true
		}
	}

	raw := digits.String()
	if raw == "" {
		n.Warnings = append(n.Warnings, fmt.Sprintf("phone %q contains no digits", phone))
		return
	}

	n.Values[models.KeyPhoneRaw] = raw
	if hasNonDigit {
		n.Values[models.KeyPhone] = phone
	} else {
		n.Values[models.KeyPhone] = raw
	}
}

// normalizeDOB populates string and integer dob forms from YYYY-MM-DD.
func normalizeDOB(n *models.NormalizedProfile, dob string) {
	if dob == "" {
		dob = n.Values[models.KeyDOB]
	}
	if dob == "" {
		return
	}

	parsed, err := time.Parse("2006-01-02", dob)
	if err != nil {
		n.Warnings = append(n.Warnings, fmt.Sprintf("date of birth %q is not YYYY-MM-DD", dob))
		return
	}
	if parsed.Year() < 1900 {
		n.Warnings = append(n.Warnings, fmt.Sprintf("date of birth year %d is before 1900", parsed.Year()))
		return
	}

	year, month, day := parsed.Year(), int(parsed.Month()), parsed.Day()

	n.Values[models.KeyDOB] = dob
	n.Values[models.KeyDOBYear] = strconv.Itoa(year)
	n.Values[models.KeyDOBMonth] = fmt.Sprintf("%02d", month)
	n.Values[models.KeyDOBDay] = fmt.Sprintf("%02d", day)
	n.Values[models.KeyDOBYearInt] = strconv.Itoa(year)
	n.Values[models.KeyDOBMonthInt] = strconv.Itoa(month)
	n.Values[models.KeyDOBDayInt] = strconv.Itoa(day)
}

// applyDefaults fills missing keys and marks each one as defaulted.
func applyDefaults(n *models.NormalizedProfile, defaults Defaults) {
	apply := func(key, value string) {
		if value == "" {
			return
		}
		if n.Values[key] == "" {
			n.Values[key] = value
			n.Defaulted[key] = true
		}
	}

	apply(models.KeyCountry, defaults.Country)
	apply(models.KeyTitle, defaults.Title)
	apply(models.KeyPassword, defaults.Password)
}

// AvailableKeys returns the canonical keys with non-empty values, in the
// canonical order. Used to scope AI analysis to fillable fields.
func AvailableKeys(n *models.NormalizedProfile) []string {
	keys := make([]string, 0, len(n.Values))
	for _, key := range models.CanonicalKeys {
		if n.Has(key) {
			keys = append(keys, key)
		}
	}
	return keys
}
