package enhance

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/pkg/utils"
)

const (
	maxNamedEntities = 50
	maxDates         = 30
	maxSimple        = 20
	maxOrgLength     = 100
)

var (
	titledPersonRe   = regexp.MustCompile(`\b(?:Dr\.|Mr\.|Mrs\.|Ms\.|Prof\.|Professor)\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3}\b`)
	twoWordNameRe    = regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`)
	threeWordNameRe  = regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\s+[A-Z][a-z]+\b`)
	attributedNameRe = regexp.MustCompile(`(?i:\b(?:said|according to|reported by|authored by|written by|by))\s+([A-Z][a-z]+\s+[A-Z][a-z]+)\b`)

	orgSuffixRe = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*\s+(?i:Inc\.|Ltd\.|Corp\.|Corporation|Company|Co\.|LLC|LLP|` +
		`Foundation|Institute|University|College|Hospital|Bank|Group|Systems|Solutions|Technologies|Tech|Labs|` +
		`Laboratories|Research|Center|Centre|Association|Society|Organization|Agency|Department|Ministry|Bureau|Office)\b`)
	theOrgRe = regexp.MustCompile(`\bThe\s+[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*(?:\s+(?:of|for|in))?\s+[A-Z][a-zA-Z]+\b`)

	locationSuffixRe = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*\s+(?:City|State|Country|Street|Avenue|Road|` +
		`Park|Square|Plaza|Building|Tower|Bridge|River|Lake|Mountain|Island|Bay|Ocean|Continent|Region|Province|County|District)\b`)

	isoDateRe   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	slashDateRe = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)
	monthDateRe = regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}\b`)
	yearRe      = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)

	emailRe        = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
	urlRe          = regexp.MustCompile(`(?i)https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)
	dollarRe       = regexp.MustCompile(`\$[\d,]+(?:\.\d{2})?\b`)
	currencySignRe = regexp.MustCompile(`(?:€|£|¥|₹|₽)[\d,]+(?:\.\d{2})?\b`)
	currencyCodeRe = regexp.MustCompile(`(?i)\b(?:USD|EUR|GBP|JPY|CNY|INR|RUB)\s+[\d,]+(?:\.\d{2})?\b`)
	percentRe      = regexp.MustCompile(`\b\d+(?:\.\d+)?\s*%`)
)

var commonPlaces = []string{
	"New York", "Los Angeles", "Chicago", "Houston", "Phoenix",
	"Philadelphia", "San Antonio", "San Diego", "Dallas", "San Jose",
	"London", "Paris", "Tokyo", "Beijing", "Shanghai", "Berlin",
	"United States", "United Kingdom", "China", "Japan", "Germany",
	"France", "Canada", "Australia", "India", "Brazil",
}

var commonPlaceRes = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(commonPlaces))
	for i, place := range commonPlaces {
		out[i] = regexp.MustCompile(`(?i)\b` + strings.ReplaceAll(place, " ", `\s+`) + `\b`)
	}
	return out
}()

// Capitalised pairs that look like names but are places or institutions.
var commonNonPersons = []string{
	"united states", "new york", "los angeles", "san francisco",
	"united kingdom", "united nations", "european union",
	"world war", "world health", "world bank", "world trade",
	"state department", "white house", "supreme court",
	"new york times", "wall street", "silicon valley",
	"middle east", "south america", "north america",
	"pacific ocean", "atlantic ocean", "indian ocean",
}

// ExtractEntities finds people, organizations, places, dates, emails, URLs,
// amounts of money and percentages by pattern matching. Each list keeps first
// occurrences in document order.
func ExtractEntities(text string) *models.Entities {
	return &models.Entities{
		Persons:       extractPersons(text),
		Organizations: extractOrganizations(text),
		Locations:     extractLocations(text),
		Dates:         extractDates(text),
		Emails:        utils.Cap(utils.Dedupe(emailRe.FindAllString(text, -1)), maxSimple),
		URLs:          utils.Cap(utils.Dedupe(urlRe.FindAllString(text, -1)), maxSimple),
		Currencies:    extractCurrencies(text),
		Percentages:   utils.Cap(utils.Dedupe(percentRe.FindAllString(text, -1)), maxSimple),
	}
}

func extractPersons(text string) []string {
	var found []string
	found = append(found, titledPersonRe.FindAllString(text, -1)...)
	for _, re := range []*regexp.Regexp{twoWordNameRe, threeWordNameRe} {
		for _, m := range re.FindAllString(text, -1) {
			if !isCommonNonPerson(m) {
				found = append(found, m)
			}
		}
	}
	for _, m := range attributedNameRe.FindAllStringSubmatch(text, -1) {
		found = append(found, m[1])
	}
	return utils.Cap(utils.Dedupe(found), maxNamedEntities)
}

func extractOrganizations(text string) []string {
	found := orgSuffixRe.FindAllString(text, -1)
	for _, m := range theOrgRe.FindAllString(text, -1) {
		if len(m) < maxOrgLength {
			found = append(found, m)
		}
	}
	return utils.Cap(utils.Dedupe(found), maxNamedEntities)
}

func extractLocations(text string) []string {
	found := locationSuffixRe.FindAllString(text, -1)
	for i, re := range commonPlaceRes {
		if re.MatchString(text) {
			found = append(found, commonPlaces[i])
		}
	}
	return utils.Cap(utils.Dedupe(found), maxNamedEntities)
}

func extractDates(text string) []string {
	var found []string
	found = append(found, isoDateRe.FindAllString(text, -1)...)
	found = append(found, slashDateRe.FindAllString(text, -1)...)
	found = append(found, monthDateRe.FindAllString(text, -1)...)
	for _, m := range yearRe.FindAllString(text, -1) {
		if year, err := strconv.Atoi(m); err == nil && year >= 1900 && year <= 2100 {
			found = append(found, m)
		}
	}
	return utils.Cap(utils.Dedupe(found), maxDates)
}

func extractCurrencies(text string) []string {
	var found []string
	found = append(found, dollarRe.FindAllString(text, -1)...)
	found = append(found, currencySignRe.FindAllString(text, -1)...)
	found = append(found, currencyCodeRe.FindAllString(text, -1)...)
	return utils.Cap(utils.Dedupe(found), maxSimple)
}

func isCommonNonPerson(s string) bool {
	lower := strings.ToLower(s)
	for _, np := range commonNonPersons {
		if strings.Contains(lower, np) {
			return true
		}
	}
	return false
}
