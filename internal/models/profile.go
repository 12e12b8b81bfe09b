package models

import "time"

// Profile holds the user data used to fill forms. Created and mutated only by
// the user; the automation core treats profiles as read-only.
type Profile struct {
	ID        string    `json:"id" badgerhold:"key"`
	Name      string    `json:"name"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email" validate:"omitempty,email"`
	Phone     string    `json:"phone"`
	Password  string    `json:"password"`
	Title     string    `json:"title"`
	DOB       string    `json:"dob"` // YYYY-MM-DD
	Gender    string    `json:"gender"`
	Address1  string    `json:"address1"`
	Address2  string    `json:"address2"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	Zip       string    `json:"zip"`
	Country   string    `json:"country"`
	Company   string    `json:"company"`
	Website   string    `json:"website" validate:"omitempty,url"`
	Username  string    `json:"username"`

	// Free-form additional key/value pairs merged into the normalized view
	Extra map[string]string `json:"extra,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Canonical profile keys produced by the normalizer. Every profile_key in a
// field plan is drawn from this set.
const (
	KeyEmail       = "email"
	KeyFirstName   = "firstName"
	KeyLastName    = "lastName"
	KeyName        = "name"
	KeyPhone       = "phone"
	KeyPhoneRaw    = "phone_raw"
	KeyPassword    = "password"
	KeyTitle       = "title"
	KeyDOB         = "dob"
	KeyDOBYear     = "dob_year"
	KeyDOBMonth    = "dob_month"
	KeyDOBDay      = "dob_day"
	KeyDOBYearInt  = "dob_year_int"
	KeyDOBMonthInt = "dob_month_int"
	KeyDOBDayInt   = "dob_day_int"
	KeyGender      = "gender"
	KeyAddress1    = "address1"
	KeyAddress2    = "address2"
	KeyCity        = "city"
	KeyState       = "state"
	KeyZip         = "zip"
	KeyCountry     = "country"
	KeyCompany     = "company"
	KeyWebsite     = "website"
	KeyUsername    = "username"
)

// CanonicalKeys lists the canonical profile-key set in a stable order.
var CanonicalKeys = []string{
	KeyEmail, KeyFirstName, KeyLastName, KeyName, KeyPhone, KeyPhoneRaw,
	KeyPassword, KeyTitle, KeyDOB, KeyDOBYear, KeyDOBMonth, KeyDOBDay,
	KeyDOBYearInt, KeyDOBMonthInt, KeyDOBDayInt, KeyGender, KeyAddress1,
	KeyAddress2, KeyCity, KeyState, KeyZip, KeyCountry, KeyCompany,
	KeyWebsite, KeyUsername,
}

// IsCanonicalKey reports whether key belongs to the canonical profile-key set.
func IsCanonicalKey(key string) bool {
	for _, k := range CanonicalKeys {
		if k == key {
			return true
		}
	}
	return false
}

// NormalizedProfile is the flattened, defaulted view of a profile that the
// filler consumes. Values holds the canonical string mapping; Defaulted marks
// keys whose values came from configured defaults rather than source data.
type NormalizedProfile struct {
	Values    map[string]string `json:"values"`
	Defaulted map[string]bool   `json:"defaulted,omitempty"`
	Warnings  []string          `json:"warnings,omitempty"`
}

// Get returns the value for a canonical key, or "" when absent.
func (n *NormalizedProfile) Get(key string) string {
	if n == nil || n.Values == nil {
		return ""
	}
	return n.Values[key]
}

// Has reports whether a canonical key has a non-empty value.
func (n *NormalizedProfile) Has(key string) bool {
	return n.Get(key) != ""
}
