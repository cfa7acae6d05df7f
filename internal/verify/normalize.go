package verify

import (
	"regexp"
	"strings"
)

var (
	addressPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,24}$`)
	spritePattern  = regexp.MustCompile(`(?i)@\d+x\.(?:png|jpe?g|webp|gif|svg|ico)$`)
	hexLocal       = regexp.MustCompile(`(?i)^[a-f0-9]{24,}$`)
	truncateAt     = regexp.MustCompile(`[?#|\s]`)

	obfuscations = strings.NewReplacer(
		"[at]", "@", "(at)", "@", " at ", "@",
		"[dot]", ".", "(dot)", ".", " dot ", ".",
	)
)

// assetExtensions are file-extension "TLDs" that mark an address-shaped
// token as a static asset reference rather than a mailbox.
var assetExtensions = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "svg": {}, "webp": {},
	"ico": {}, "js": {}, "css": {}, "map": {}, "json": {},
	"woff": {}, "woff2": {}, "ttf": {}, "eot": {}, "otf": {}, "pdf": {},
}

// NormalizeEmail canonicalizes a raw scraped token into a comparable
// address: lowercases, strips a mailto: prefix, truncates at the first
// query, fragment, pipe or whitespace, undoes common obfuscations, and
// removes stray spaces and wrapping punctuation. Lowercasing happens
// first so uppercase obfuscations ([AT], [DOT]) decode too; the result
// is idempotent, and garbage input collapses toward the empty string.
func NormalizeEmail(raw string) string {
	addr := strings.ToLower(strings.TrimSpace(raw))
	addr = strings.TrimPrefix(addr, "mailto:")
	if loc := truncateAt.FindStringIndex(addr); loc != nil {
		addr = addr[:loc[0]]
	}
	addr = obfuscations.Replace(addr)
	addr = strings.ReplaceAll(addr, " ", "")
	return strings.Trim(addr, `()<>[]{}.,;:"'`)
}

// IsPlausible reports whether the address looks like a real mailbox: it
// must match a loose RFC pattern and must not look like an asset path or
// tracking identifier.
func IsPlausible(addr string) bool {
	if !addressPattern.MatchString(addr) {
		return false
	}
	return !looksLikeAssetOrID(addr)
}

// Domain returns the lowercase domain part of an address, or "" when the
// address has no usable domain.
func Domain(addr string) string {
	at := strings.Index(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(addr[at+1:])
}

// LocalPart returns the part before the first @, or "" when absent.
func LocalPart(addr string) string {
	at := strings.Index(addr, "@")
	if at <= 0 {
		return ""
	}
	return strings.ToLower(addr[:at])
}

// looksLikeAssetOrID filters junk like globe@2x.webp or long tracking ids.
func looksLikeAssetOrID(addr string) bool {
	domain := Domain(addr)
	if domain == "" || !strings.Contains(domain, ".") {
		return true
	}
	if _, ok := assetExtensions[domain[strings.LastIndex(domain, ".")+1:]]; ok {
		return true
	}
	if spritePattern.MatchString(addr) {
		return true
	}
	return hexLocal.MatchString(LocalPart(addr))
}
