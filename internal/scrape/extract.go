package scrape

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/outreachkit/prospector/internal/verify"
)

// emailPattern matches address-shaped tokens inside free text; matches go
// through verify.NormalizeEmail and the plausibility filter afterwards.
var emailPattern = regexp.MustCompile(`(?i)\b[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,24}\b`)

var textObfuscations = strings.NewReplacer(
	"[AT]", "@", "[at]", "@", "(at)", "@", " at ", "@",
	"[DOT]", ".", "[dot]", ".", "(dot)", ".", " dot ", ".",
)

var contactFormHints = []string{"contact", "get-in-touch", "reach-us", "connect"}

// SocialLinks records the first profile link found per network plus a
// same-origin contact form URL.
type SocialLinks struct {
	LinkedIn    string `json:"linkedin,omitempty"`
	Instagram   string `json:"instagram,omitempty"`
	Facebook    string `json:"facebook,omitempty"`
	ContactForm string `json:"contact_form,omitempty"`
}

// Merge fills empty fields from other, keeping first-found values.
func (s *SocialLinks) Merge(other SocialLinks) {
	if s.LinkedIn == "" {
		s.LinkedIn = other.LinkedIn
	}
	if s.Instagram == "" {
		s.Instagram = other.Instagram
	}
	if s.Facebook == "" {
		s.Facebook = other.Facebook
	}
	if s.ContactForm == "" {
		s.ContactForm = other.ContactForm
	}
}

// PageExtract is everything pulled from one page.
type PageExtract struct {
	Emails       []string
	Phones       []string
	Social       SocialLinks
	ContextScore int
}

// ExtractPage mines a parsed page for emails (mailto links, footer text,
// whole-body text), phone numbers (tel links, footer/body/contact
// sections), social links, and guest-posting context.
func ExtractPage(doc *goquery.Document, pageURL string) PageExtract {
	var out PageExtract
	emailSeen := make(map[string]struct{})
	phoneSeen := make(map[string]struct{})

	addEmail := func(addr string) {
		if addr == "" || !verify.IsPlausible(addr) {
			return
		}
		if _, dup := emailSeen[addr]; dup {
			return
		}
		emailSeen[addr] = struct{}{}
		out.Emails = append(out.Emails, addr)
	}
	addPhones := func(phones []string) {
		for _, p := range phones {
			if _, dup := phoneSeen[p]; dup {
				continue
			}
			phoneSeen[p] = struct{}{}
			out.Phones = append(out.Phones, p)
		}
	}

	doc.Find("a[href^='mailto:']").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		addEmail(verify.NormalizeEmail(href))
	})

	doc.Find("a[href^='tel:']").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		norm := NormalizePhone(strings.TrimPrefix(href, "tel:"))
		if norm != "" && ValidPhone(norm) {
			addPhones([]string{norm})
		}
	})

	doc.Find("footer").Each(func(_ int, sel *goquery.Selection) {
		text := collapseText(sel)
		for _, addr := range emailsFromText(text) {
			addEmail(addr)
		}
		addPhones(ExtractPhones(text))
	})

	bodyText := collapseText(doc.Selection)
	for _, addr := range emailsFromText(bodyText) {
		addEmail(addr)
	}
	addPhones(ExtractPhones(bodyText))
	out.ContextScore = GuestPhraseScore(bodyText)

	// Contact-ish sections get a second phone pass; numbers there are
	// likelier to be real contact lines than stray digits elsewhere.
	doc.Find("section, div, aside").Each(func(_ int, sel *goquery.Selection) {
		class, _ := sel.Attr("class")
		id, _ := sel.Attr("id")
		haystack := strings.ToLower(class + " " + id)
		for _, kw := range []string{"contact", "footer", "info", "address", "phone", "tel"} {
			if strings.Contains(haystack, kw) {
				addPhones(ExtractPhones(collapseText(sel)))
				break
			}
		}
	})

	out.Social = ExtractSocialLinks(doc, pageURL)
	return out
}

// ExtractSocialLinks records the first LinkedIn/Instagram/Facebook link
// and a same-origin contact form link matched by path keyword.
func ExtractSocialLinks(doc *goquery.Document, pageURL string) SocialLinks {
	var links SocialLinks
	base, _ := url.Parse(pageURL)

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		lower := strings.ToLower(href)

		if strings.Contains(lower, "linkedin.com") && links.LinkedIn == "" {
			links.LinkedIn = absoluteURL(base, lower)
		}
		if strings.Contains(lower, "instagram.com") && links.Instagram == "" {
			links.Instagram = absoluteURL(base, lower)
		}
		if strings.Contains(lower, "facebook.com") && links.Facebook == "" {
			links.Facebook = absoluteURL(base, lower)
		}

		if links.ContactForm == "" {
			for _, hint := range contactFormHints {
				if strings.Contains(lower, hint) {
					full := absoluteURL(base, lower)
					if sameOrigin(base, full) {
						links.ContactForm = full
					}
					break
				}
			}
		}
	})
	return links
}

// emailsFromText decodes entities, undoes obfuscations, and pulls out
// normalized addresses.
func emailsFromText(text string) []string {
	if text == "" {
		return nil
	}
	text = textObfuscations.Replace(html.UnescapeString(text))
	matches := emailPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if norm := verify.NormalizeEmail(m); norm != "" {
			out = append(out, norm)
		}
	}
	return out
}

func collapseText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func absoluteURL(base *url.URL, href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func sameOrigin(base *url.URL, raw string) bool {
	if base == nil {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Host == "" || strings.EqualFold(u.Host, base.Host)
}
