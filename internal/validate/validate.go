// Package validate holds the pure input validators used by the
// registration and payment flows. Every function is deterministic and
// side-effect free; rejected input carries no partial result.
package validate

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	nameRe          = regexp.MustCompile(`^[A-Za-z][A-Za-z '\-]*[A-Za-z]$`)
	possessiveRe    = regexp.MustCompile(`'[A-Za-z]$`)
	addressCharsRe  = regexp.MustCompile(`^[A-Za-z0-9 .,\-/#'"]+$`)
	digitRe         = regexp.MustCompile(`[0-9]`)
	nationalIDRe    = regexp.MustCompile(`^\d{2}-\d{6}[A-Z]\d{2}$`)
	passportRe      = regexp.MustCompile(`^[A-Z]{2}\d{6}$`)
	driversLicRe    = regexp.MustCompile(`^\d{12}$`)
	passcodeRe      = regexp.MustCompile(`^\d{6}$`)
	meterRe         = regexp.MustCompile(`^\d{11}$`)
	mobilePhoneRe   = regexp.MustCompile(`^07[78]\d{7}$`)
)

// addressKeywords is the fixed locality/street vocabulary an address must hit.
var addressKeywords = []string{
	"street", "road", "avenue", "ave", "drive", "close", "crescent",
	"lane", "way", "stand", "township",
	"harare", "bulawayo", "chitungwiza", "mutare", "gweru", "kwekwe",
	"kadoma", "masvingo", "marondera", "norton",
	"avondale", "borrowdale", "hillside", "highfield", "mbare",
}

// Name reports whether s is an acceptable human name: 2-50 characters of
// letters, spaces, hyphens and apostrophes, starting and ending with a
// letter. A trailing possessive ("McDonald's") is rejected.
func Name(s string) bool {
	if len(s) < 2 || len(s) > 50 {
		return false
	}
	if !nameRe.MatchString(s) {
		return false
	}
	if possessiveRe.MatchString(s) {
		return false
	}
	return true
}

// Address reports whether s looks like a residential address: 5-200
// characters, at least one digit, a restricted character set, and at least
// one recognized street or locality keyword.
func Address(s string) bool {
	if len(s) < 5 || len(s) > 200 {
		return false
	}
	if !addressCharsRe.MatchString(s) {
		return false
	}
	if !digitRe.MatchString(s) {
		return false
	}
	lower := strings.ToLower(s)
	for _, kw := range addressKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// NationalID reports whether s matches the national ID pattern
// (2 digits, hyphen, 6 digits, 1 uppercase letter, 2 digits).
func NationalID(s string) bool {
	return nationalIDRe.MatchString(s)
}

// Passport reports whether s matches the passport pattern
// (2 uppercase letters followed by 6 digits).
func Passport(s string) bool {
	return passportRe.MatchString(s)
}

// DriversLicense reports whether s is exactly 12 digits.
func DriversLicense(s string) bool {
	return driversLicRe.MatchString(s)
}

// Passcode reports whether s is an acceptable wallet passcode (6 digits).
func Passcode(s string) bool {
	return passcodeRe.MatchString(s)
}

// MeterNumber reports whether s is an acceptable ZESA meter number (11 digits).
func MeterNumber(s string) bool {
	return meterRe.MatchString(s)
}

// MobilePhone reports whether s is a mobile-money phone number
// (077/078 prefix followed by 7 digits).
func MobilePhone(s string) bool {
	return mobilePhoneRe.MatchString(s)
}

// Amount parses s as a positive decimal amount. The parsed value is
// returned so callers never re-parse accepted input.
func Amount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, false
	}
	if d.Sign() <= 0 {
		return decimal.Zero, false
	}
	return d, true
}
