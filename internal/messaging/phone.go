package messaging

import (
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var channelPrefixes = []string{"whatsapp:", "sms:", "tel:"}

// NormalizePhone reduces a phone identifier to E.164 so numbers typed by the
// agency compare equal to the sender reported by the provider. Channel prefixes
// ("whatsapp:+33...") are dropped and national numbers are read in the numbering
// plan of countryCode. It returns "" when raw holds no digits.
func NormalizePhone(raw, countryCode string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, p := range channelPrefixes {
		s = strings.TrimSpace(strings.TrimPrefix(s, p))
	}
	// "+33 (0)6 12 34 56 78" carries a national trunk zero that must not survive.
	s = strings.ReplaceAll(s, "(0)", "")
	digits := digitsOf(s)
	if digits == "" {
		return ""
	}
	plus := strings.HasPrefix(s, "+")

	if num, err := phonenumbers.Parse(s, regionFor(countryCode)); err == nil {
		if !plus && !phonenumbers.IsPossibleNumber(num) {
			// "14155238886": an international number typed without its plus.
			if intl, err := phonenumbers.Parse("+"+digits, ""); err == nil && phonenumbers.IsPossibleNumber(intl) {
				return phonenumbers.Format(intl, phonenumbers.E164)
			}
		}
		return phonenumbers.Format(num, phonenumbers.E164)
	}
	if plus {
		return "+" + digits
	}
	return digits
}

// regionFor maps a calling code such as "33" or "+1" to the main region using
// it. An empty or unknown code yields "", which only parses international input.
func regionFor(countryCode string) string {
	cc, err := strconv.Atoi(strings.TrimLeft(strings.TrimSpace(countryCode), "+"))
	if err != nil || cc <= 0 {
		return ""
	}
	region := phonenumbers.GetRegionCodeForCountryCode(cc)
	if region == "ZZ" {
		return ""
	}
	return region
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// WhatsAppAddress formats a number the way the provider addresses WhatsApp users.
func WhatsAppAddress(to string) string {
	to = strings.TrimSpace(to)
	if strings.HasPrefix(to, "whatsapp:") {
		return to
	}
	return "whatsapp:" + to
}
