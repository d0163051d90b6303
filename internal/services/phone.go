package services

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizeMobileNumber formats raw as E.164 when it parses as a valid number
// for region. Anything else is kept as given.
func NormalizeMobileNumber(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	num, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
