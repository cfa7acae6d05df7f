package blog

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

var datePatterns = []*regexp.Regexp{
	// Full month names
	regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4}\b`),
	// Abbreviated month names
	regexp.MustCompile(`(?i)\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.?\s+\d{1,2},?\s+\d{4}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.?\s+\d{4}\b`),
	// ISO and slash formats
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`),
	regexp.MustCompile(`\b\d{4}/\d{1,2}/\d{1,2}\b`),
}

var dateLayouts = []string{
	"January 2, 2006", "January 2 2006", "2 January 2006",
	"Jan 2, 2006", "Jan 2 2006", "2 Jan 2006",
	"Jan. 2, 2006", "Jan. 2 2006", "2 Jan. 2006",
	"2006-01-02", "1/2/2006", "2/1/2006", "2006/1/2",
}

const maxExtractedDates = 10

// ExtractDates pulls parseable dates out of free text, filters out
// implausible years, and returns them most-recent-first, capped at 10.
func ExtractDates(text string, now time.Time) []time.Time {
	seen := make(map[time.Time]struct{})
	var dates []time.Time
	maxYear := now.Year() + 1

	for _, pattern := range datePatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			trimmed := strings.Trim(match, ".,")
			for _, layout := range dateLayouts {
				parsed, err := time.Parse(layout, trimmed)
				if err != nil {
					continue
				}
				if parsed.Year() >= 2000 && parsed.Year() <= maxYear {
					if _, dup := seen[parsed]; !dup {
						seen[parsed] = struct{}{}
						dates = append(dates, parsed)
					}
				}
				break
			}
		}
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	if len(dates) > maxExtractedDates {
		dates = dates[:maxExtractedDates]
	}
	return dates
}
