package scrape

import (
	"regexp"
	"strings"
)

var phonePatterns = []*regexp.Regexp{
	// US formats: (123) 456-7890, 123-456-7890, 123.456.7890, 123 456 7890
	regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?([2-9][0-8]\d)\)?[-.\s]?([2-9]\d{2})[-.\s]?(\d{4})\b`),
	// International formats: +1 123 456 7890, +44 20 1234 5678
	regexp.MustCompile(`\+\d{1,3}[-.\s]?\(?\d{1,4}\)?[-.\s]?\d{1,4}[-.\s]?\d{1,9}`),
	// Generic separators
	regexp.MustCompile(`\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`),
	regexp.MustCompile(`\(\d{3}\)[-.\s]?\d{3}[-.\s]?\d{4}`),
	// Toll-free
	regexp.MustCompile(`\b1?[-.\s]?800[-.\s]\d{3}[-.\s]\d{4}\b`),
}

var phoneContextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:phone|tel|telephone|call|mobile|cell):\s*([+\d\s\-.()x]+)`),
	regexp.MustCompile(`(?i)(?:phone|tel|telephone|call|mobile|cell)\s*[:\-]?\s*([+\d\s\-.()x]+)`),
	regexp.MustCompile(`(?i)(?:p|t):\s*([+\d\s\-.()x]{10,})`),
	regexp.MustCompile(`(?is)contact.*?([+\d\s\-.()]{10,})`),
}

var (
	phoneJunk      = regexp.MustCompile(`[^\d+x]`)
	phoneExtension = regexp.MustCompile(`x\d+$`)
	nonDigit       = regexp.MustCompile(`\D`)
)

// fakeSequences are number strings no real business publishes.
var fakeSequences = map[string]struct{}{
	"1111111111": {}, "2222222222": {}, "3333333333": {}, "4444444444": {},
	"5555555555": {}, "6666666666": {}, "7777777777": {}, "8888888888": {},
	"9999999999": {}, "0000000000": {},
	"1234567890": {}, "0987654321": {}, "1122334455": {},
}

// ExtractPhones pulls phone numbers out of free text using pattern and
// context matching, returning normalized +<cc><digits> strings.
func ExtractPhones(text string) []string {
	if text == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	add := func(raw string) {
		norm := NormalizePhone(raw)
		if norm == "" || !ValidPhone(norm) {
			return
		}
		if _, dup := seen[norm]; dup {
			return
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}

	for _, p := range phonePatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			if len(m) == 4 && m[1] != "" {
				add("(" + m[1] + ") " + m[2] + "-" + m[3])
			} else {
				add(m[0])
			}
		}
	}
	for _, p := range phoneContextPatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			add(m[1])
		}
	}
	return out
}

// NormalizePhone strips formatting and applies country-code defaults
// (bare 10-digit numbers are treated as US).
func NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}
	phone = phoneJunk.ReplaceAllString(strings.ToLower(phone), "")
	phone = phoneExtension.ReplaceAllString(phone, "")

	switch {
	case strings.HasPrefix(phone, "+1") && len(phone) == 12:
		return phone
	case strings.HasPrefix(phone, "1") && len(phone) == 11:
		return "+" + phone
	case len(phone) == 10 && !strings.HasPrefix(phone, "+"):
		return "+1" + phone
	case strings.HasPrefix(phone, "+") && len(phone) >= 10:
		return phone
	}
	return phone
}

// ValidPhone rejects strings that cannot be a dialable number: wrong
// digit count, too few distinct digits, or a known fake sequence.
func ValidPhone(phone string) bool {
	digits := nonDigit.ReplaceAllString(phone, "")
	if len(digits) < 10 || len(digits) > 15 {
		return false
	}
	distinct := make(map[rune]struct{})
	for _, d := range digits {
		distinct[d] = struct{}{}
	}
	if len(distinct) <= 2 {
		return false
	}
	_, fake := fakeSequences[digits]
	return !fake
}
