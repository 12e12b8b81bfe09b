package matcher

import "github.com/ternarybob/compleo/internal/models"

// synonymEntry binds a canonical key to its lowercased token substrings.
// Order matters: earlier keys win when multiple synonyms are contained in the
// same text, so the more specific keys come first.
type synonymEntry struct {
	key    string
	tokens []string
}

// defaultSynonyms is the built-in synonym dictionary. Matching is substring
// containment over case-folded alphanumeric text.
var defaultSynonyms = []synonymEntry{
	{models.KeyEmail, []string{"email", "e-mail", "emailaddress", "mail"}},
	{models.KeyFirstName, []string{"firstname", "first name", "fname", "givenname", "given name", "forename"}},
	{models.KeyLastName, []string{"lastname", "last name", "lname", "surname", "familyname", "family name"}},
	{models.KeyUsername, []string{"username", "user name", "userid", "user id", "login", "handle", "screenname"}},
	{models.KeyPassword, []string{"password", "passwd", "pwd", "passphrase"}},
	{models.KeyPhone, []string{"phone", "telephone", "mobile", "cell", "tel"}},
	{models.KeyCompany, []string{"company", "organization", "organisation", "employer", "business name"}},
	{models.KeyWebsite, []string{"website", "web site", "homepage", "url"}},
	{models.KeyAddress2, []string{"address2", "address 2", "addressline2", "apt", "apartment", "suite", "unit"}},
	{models.KeyAddress1, []string{"address", "street", "addr1", "addressline1"}},
	{models.KeyCity, []string{"city", "town", "locality"}},
	{models.KeyState, []string{"state", "province", "region", "county"}},
	{models.KeyZip, []string{"zip", "zipcode", "postal", "postcode"}},
	{models.KeyCountry, []string{"country", "nation"}},
	{models.KeyDOBYear, []string{"birthyear", "birth year", "dobyear", "yearofbirth"}},
	{models.KeyDOBMonth, []string{"birthmonth", "birth month", "dobmonth", "monthofbirth"}},
	{models.KeyDOBDay, []string{"birthday", "birth day", "dobday", "dayofbirth"}},
	{models.KeyDOB, []string{"dateofbirth", "date of birth", "birthdate", "dob"}},
	{models.KeyGender, []string{"gender", "sex"}},
	{models.KeyTitle, []string{"salutation", "title", "prefix"}},
	{models.KeyName, []string{"fullname", "full name", "yourname", "your name", "name"}},
}

// confirmPasswordTokens mark a password field as a confirmation field.
var confirmPasswordTokens = []string{
	"confirm", "verify", "retype", "re-enter", "reenter", "repeat", "password2", "pwd2",
}

// requiredCheckTokens classify a checkbox that must be ticked.
var requiredCheckTokens = []string{
	"terms", "agree", "accept", "privacy", "consent", "gdpr",
}

// skipCheckTokens classify a checkbox that is left alone.
var skipCheckTokens = []string{
	"newsletter", "subscribe", "mailinglist",
}
