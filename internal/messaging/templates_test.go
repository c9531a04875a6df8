package messaging

import (
	"strings"
	"testing"

	"staffline/internal/domain"
)

func TestCandidateOutreach(t *testing.T) {
	sms := CandidateOutreach(domain.ChannelSMS, "Acme Interim", "Cariste H/F")
	want := `Bonjour ! Acme Interim vous propose une mission : "Cariste H/F". Êtes-vous disponible ? Répondez OUI ou NON.`
	if sms != want {
		t.Fatalf("unexpected sms body:\n%s", sms)
	}
	wa := CandidateOutreach(domain.ChannelWhatsApp, "Acme Interim", "Cariste H/F")
	if !strings.Contains(wa, "*Acme Interim*") || !strings.Contains(wa, "*Cariste H/F*") || !strings.Contains(wa, "*OUI*") {
		t.Fatalf("expected formatted whatsapp body, got:\n%s", wa)
	}
}

func TestClientProposal(t *testing.T) {
	got := ClientProposal(domain.ChannelSMS, "Acme Interim", "Cariste", "Marie D.\n5 ans d'expérience")
	if !strings.HasPrefix(got, `Acme Interim vous propose un profil pour la mission "Cariste" : Marie D., 5 ans`) {
		t.Fatalf("unexpected notice %q", got)
	}
	if !strings.HasSuffix(got, "Répondez OUI pour valider.") {
		t.Fatalf("missing reply instructions: %q", got)
	}
	if got := ClientProposal(domain.ChannelSMS, "A", "M", " "); strings.Contains(got, " : ") {
		t.Fatalf("empty profile should not be rendered: %q", got)
	}
	wa := ClientProposal(domain.ChannelWhatsApp, "A", "Cariste", "Marie D.")
	if !strings.Contains(wa, "*Profil proposé pour \"Cariste\"*") || !strings.HasSuffix(wa, "Répondez *OUI* pour valider ce profil.") {
		t.Fatalf("unexpected whatsapp notice %q", wa)
	}
}
