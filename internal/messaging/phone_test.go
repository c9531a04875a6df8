package messaging

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"+33 6 12 34 56 78", "+33612345678"},
		{"06 12 34 56 78", "+33612345678"},
		{"06.12.34.56.78", "+33612345678"},
		{"0033612345678", "+33612345678"},
		{"whatsapp:+33612345678", "+33612345678"},
		{"WhatsApp:+33612345678", "+33612345678"},
		{"tel:+33-6-12-34-56-78", "+33612345678"},
		{"+33 (0)6 12 34 56 78", "+33612345678"},
		{"612345678", "+33612345678"},
		{"14155238886", "+14155238886"},
		{"", ""},
		{"n/a", ""},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.raw, "33"); got != tc.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizePhoneCountryCode(t *testing.T) {
	if got := NormalizePhone("0470 12 34 56", "+32"); got != "+32470123456" {
		t.Fatalf("unexpected belgian number %q", got)
	}
	if got := NormalizePhone("0612345678", ""); got != "0612345678" {
		t.Fatalf("expected national number kept without country code, got %q", got)
	}
}

func TestNormalizePhoneOtherNumberingPlans(t *testing.T) {
	cases := []struct {
		raw, cc, want string
	}{
		{"202-555-0123", "1", "+12025550123"},
		{"(202) 555-0123", "+1", "+12025550123"},
		{"+1 202 555 0123", "1", "+12025550123"},
		{"whatsapp:+12025550123", "1", "+12025550123"},
		{"030 1234567", "49", "+49301234567"},
		{"+49 30 1234567", "49", "+49301234567"},
		{"020 7946 0018", "44", "+442079460018"},
		{"whatsapp:+442079460018", "44", "+442079460018"},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.raw, tc.cc); got != tc.want {
			t.Fatalf("NormalizePhone(%q, %q) = %q, want %q", tc.raw, tc.cc, got, tc.want)
		}
	}
}

func TestNormalizePhoneUnknownCountryCode(t *testing.T) {
	if got := NormalizePhone("+33 6 12 34 56 78", "999"); got != "+33612345678" {
		t.Fatalf("international number must not depend on the default code, got %q", got)
	}
	if got := NormalizePhone("06 12 34 56 78", "999"); got != "0612345678" {
		t.Fatalf("expected bare digits without a usable plan, got %q", got)
	}
}

func TestWhatsAppAddress(t *testing.T) {
	if got := WhatsAppAddress("+33612345678"); got != "whatsapp:+33612345678" {
		t.Fatalf("unexpected address %q", got)
	}
	if got := WhatsAppAddress("whatsapp:+33612345678"); got != "whatsapp:+33612345678" {
		t.Fatalf("prefix duplicated: %q", got)
	}
}
