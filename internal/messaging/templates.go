package messaging

import (
	"fmt"
	"strings"

	"staffline/internal/domain"
)

// CandidateOutreach renders the first contact sent to a candidate. WhatsApp
// gets the formatted variant; every other channel gets the plain SMS text.
func CandidateOutreach(ch domain.Channel, agencyName, missionTitle string) string {
	agencyName = strings.TrimSpace(agencyName)
	missionTitle = strings.TrimSpace(missionTitle)
	if ch == domain.ChannelWhatsApp {
		return fmt.Sprintf("👋 Bonjour !\n\n*%s* vous propose une nouvelle mission :\n\n📋 *%s*\n\nÊtes-vous disponible et intéressé(e) ?\nRépondez *OUI* ou *NON*.", agencyName, missionTitle)
	}
	return fmt.Sprintf("Bonjour ! %s vous propose une mission : \"%s\". Êtes-vous disponible ? Répondez OUI ou NON.", agencyName, missionTitle)
}

// ClientProposal renders the notice sent to a client when the agency proposes a
// profile. profile must already be filtered for the participant's visibility.
func ClientProposal(ch domain.Channel, agencyName, missionTitle, profile string) string {
	missionTitle = strings.TrimSpace(missionTitle)
	profile = strings.TrimSpace(profile)
	if ch == domain.ChannelWhatsApp {
		var b strings.Builder
		fmt.Fprintf(&b, "✅ *Profil proposé pour \"%s\"*\n\n", missionTitle)
		if profile != "" {
			b.WriteString(profile)
			b.WriteString("\n\n")
		}
		b.WriteString("Répondez *OUI* pour valider ce profil.")
		return b.String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s vous propose un profil pour la mission \"%s\"", strings.TrimSpace(agencyName), missionTitle)
	if profile != "" {
		fmt.Fprintf(&b, " : %s", strings.ReplaceAll(profile, "\n", ", "))
	}
	b.WriteString(". Répondez OUI pour valider.")
	return b.String()
}
