package scrape

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parseHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractPageEmails(t *testing.T) {
	t.Parallel()

	doc := parseHTML(t, `
		<html><body>
			<a href="mailto:Editor@Example.com?subject=pitch">Email us</a>
			<p>Reach the team at press[at]example[dot]com for media.</p>
			<footer>General inquiries: info@example.com</footer>
			<img src="x"><a href="mailto:globe@2x.webp">broken</a>
		</body></html>`)

	extract := ExtractPage(doc, "https://example.com")
	require.Contains(t, extract.Emails, "editor@example.com")
	require.Contains(t, extract.Emails, "press@example.com")
	require.Contains(t, extract.Emails, "info@example.com")
	require.NotContains(t, extract.Emails, "globe@2x.webp")
}

func TestExtractPageEntityDecoding(t *testing.T) {
	t.Parallel()

	doc := parseHTML(t, `<html><body><p>contact&#64;example.com</p></body></html>`)
	extract := ExtractPage(doc, "https://example.com")
	require.Contains(t, extract.Emails, "contact@example.com")
}

func TestExtractPagePhonesAndContext(t *testing.T) {
	t.Parallel()

	doc := parseHTML(t, `
		<html><body>
			<a href="tel:+1-212-555-0187">Call</a>
			<div class="contact-info">Phone: (646) 555-0142</div>
			<p>Write for us! Read our submission guidelines first.</p>
		</body></html>`)

	extract := ExtractPage(doc, "https://example.com")
	require.Contains(t, extract.Phones, "+12125550187")
	require.Contains(t, extract.Phones, "+16465550142")
	require.Equal(t, 4, extract.ContextScore)
}

func TestExtractSocialLinks(t *testing.T) {
	t.Parallel()

	doc := parseHTML(t, `
		<html><body>
			<a href="https://linkedin.com/company/acme">LI</a>
			<a href="https://www.linkedin.com/company/second">LI2</a>
			<a href="https://instagram.com/acme">IG</a>
			<a href="/contact">Contact us</a>
			<a href="https://other.example.net/contact">External contact</a>
		</body></html>`)

	links := ExtractSocialLinks(doc, "https://example.com/about")
	require.Equal(t, "https://linkedin.com/company/acme", links.LinkedIn)
	require.Equal(t, "https://instagram.com/acme", links.Instagram)
	require.Empty(t, links.Facebook)
	require.Equal(t, "https://example.com/contact", links.ContactForm)
}

func TestSocialLinksMergeKeepsFirstFound(t *testing.T) {
	t.Parallel()

	links := SocialLinks{LinkedIn: "https://linkedin.com/company/first"}
	links.Merge(SocialLinks{
		LinkedIn: "https://linkedin.com/company/second",
		Facebook: "https://facebook.com/acme",
	})
	require.Equal(t, "https://linkedin.com/company/first", links.LinkedIn)
	require.Equal(t, "https://facebook.com/acme", links.Facebook)
}
