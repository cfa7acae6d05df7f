package scrape

import (
	"sort"
	"strings"

	"github.com/outreachkit/prospector/internal/verify"
)

// editorialPrefixes order matters: earlier entries are more specific and
// earn a heavier rank bonus.
var editorialPrefixes = []string{
	"submissions@", "submission@", "submit@", "contributors@", "contributor@", "contribute@",
	"editor@", "editors@", "editorial@", "letters@", "opinion@", "opeds@", "opiniondesk@",
	"pitch@", "pitches@", "tips@", "newsroom@", "press@", "media@", "pr@", "communications@",
	"guest@", "guestpost@", "guest-post@", "write@", "writers@", "writing@", "content@", "blog@",
}

// guestPhrases signal a site that invites outside contributors.
var guestPhrases = []string{
	"write for us", "guest post", "guest posting", "guest blogger", "submit article",
	"submission guidelines", "editorial guidelines", "become a contributor", "contribute",
	"pitch us", "send us your story", "guest blogging guidelines", "submit your writing",
}

// freemailDomains hosts personal inboxes; addresses there are weak
// outreach targets unless the role says otherwise.
var freemailDomains = map[string]struct{}{
	"gmail.com": {}, "yahoo.com": {}, "outlook.com": {}, "hotmail.com": {},
	"aol.com": {}, "icloud.com": {}, "proton.me": {}, "protonmail.com": {},
	"live.com": {}, "msn.com": {}, "yandex.com": {},
}

// RankedEmail is an address scored for guest-posting outreach.
type RankedEmail struct {
	Email string `json:"email"`
	Score int    `json:"rank_score"`
	Role  string `json:"role"`
}

// GuestPhraseScore scores text for contributor-invitation phrases, two
// points apiece.
func GuestPhraseScore(text string) int {
	lower := strings.ToLower(text)
	score := 0
	for _, phrase := range guestPhrases {
		if strings.Contains(lower, phrase) {
			score += 2
		}
	}
	return score
}

// ClassifyRole labels an address by its local part: a matching editorial
// prefix names the role, generic contact keywords yield "general", and
// everything else is "unknown".
func ClassifyRole(email string) string {
	lower := strings.ToLower(email)
	local := verify.LocalPart(lower)
	for _, prefix := range editorialPrefixes {
		name := strings.TrimSuffix(prefix, "@")
		if strings.HasPrefix(lower, prefix) || strings.Contains(local, name) {
			return name
		}
	}
	for _, k := range []string{"info", "hello", "contact", "support", "team"} {
		if strings.Contains(local, k) {
			return "general"
		}
	}
	return "unknown"
}

// RankEmails scores and orders candidate addresses for a site. Own-domain
// addresses win big; editorial prefixes add a weighted bonus; freemail is
// penalized, softly for recognized roles and hard otherwise. Ties break
// alphabetically so output is deterministic.
func RankEmails(emails []string, siteHost string, contextScore int) []RankedEmail {
	unique := make(map[string]struct{}, len(emails))
	ranked := make([]RankedEmail, 0, len(emails))

	for _, email := range emails {
		if _, dup := unique[email]; dup || email == "" {
			continue
		}
		unique[email] = struct{}{}

		role := ClassifyRole(email)
		score := 0

		if isCompanyDomain(email, siteHost) {
			score += 100
		}
		for i, prefix := range editorialPrefixes {
			if strings.HasPrefix(email, prefix) {
				score += 45 + (len(editorialPrefixes) - i)
				break
			}
		}
		if role != "unknown" && role != "general" {
			score += 10
		}
		if isFreemail(email) {
			if role != "unknown" && role != "general" {
				score -= 5
			} else {
				score -= 40
			}
		}
		if role == "general" {
			score += 5
		}
		score += contextScore

		ranked = append(ranked, RankedEmail{Email: email, Score: score, Role: role})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Email < ranked[j].Email
	})
	return ranked
}

func isCompanyDomain(email, siteHost string) bool {
	host := verify.Domain(email)
	if host == "" || siteHost == "" {
		return false
	}
	return strings.HasSuffix(host, siteHost)
}

func isFreemail(email string) bool {
	_, ok := freemailDomains[verify.Domain(email)]
	return ok
}
