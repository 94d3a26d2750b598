// Package fieldclass classifies form fields from their metadata.
//
// The classifier drives two decisions in the rewrite flow: whether a field is
// protected (identity-bearing fields are never rewritten) and which
// do-not-change instructions the rewrite prompt must carry. Classification
// looks only at the field's own metadata and current value; it never touches
// the rest of the page.
package fieldclass

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/voxfill/voxfill/pkg/forms"
)

var (
	nameRe    = regexp.MustCompile(`(?i)(\bname\b|\bfirst\b|\blast\b|\bsurname\b|\bgiven\b|full\s*-?\s*name|user\s*-?\s*name|username)`)
	emailRe   = regexp.MustCompile(`(?i)(e[-\s]?mail|\bemail\b)`)
	phoneRe   = regexp.MustCompile(`(?i)(phone|mobile|telephone|tel\b|cell\b|whatsapp|contact\s*number|phone\s*number)`)
	idRe      = regexp.MustCompile(`(?i)(employee|student|tax|account|national|passport|driver|applicant|customer|user)\s*(id|number|no\.?|#)\b|\b(id\s*number|id#|id no\.?|ssn|nin|nid|pan|aadhaar|aadhar|dni|cedula|rfc|curp|nif)\b`)
	urlRe     = regexp.MustCompile(`(?i)(url|website|web\s*site|link|homepage|home\s*page|portfolio)`)
	dateRe    = regexp.MustCompile(`(?i)(date|dob|birth\s*date|birthday|start\s*date|end\s*date|expiry|expiration|exp\s*date|mm/?yy(?:yy)?)`)
	addressRe = regexp.MustCompile(`(?i)(address|street|st\.?\b|avenue|ave\.?\b|road|rd\.?\b|boulevard|blvd\.?\b|lane|ln\.?\b|drive|dr\.?\b|court|ct\.?\b|place|pl\.?\b|square|sq\.?\b|trail|trl\.?\b|parkway|pkwy\.?\b|circle|cir\.?\b|city|state|province|region|county|zip|postal|postcode|country|apt|apartment|suite|ste\.?\b|unit|building|bldg)`)

	digitRe    = regexp.MustCompile(`\d`)
	currencyRe = regexp.MustCompile(`[€£¥₹$]|\b(?:USD|EUR|GBP|JPY|INR|CAD|AUD)\b`)
	percentRe  = regexp.MustCompile(`(?i)\d+\s*%|\bpercent\b`)
)

var dateInputTypes = map[string]bool{
	"date": true, "datetime-local": true, "month": true, "time": true, "week": true,
}

// Context is the classification of one field given its metadata and current
// value.
type Context struct {
	Label       string
	Placeholder string
	InputType   string
	Name        string

	HasNumbers     bool
	HasProperNouns bool

	IsName    bool
	IsEmail   bool
	IsPhone   bool
	IsID      bool
	IsURL     bool
	IsDate    bool
	IsAddress bool

	// Instructions is the do-not-change hint block for the rewrite prompt,
	// empty when nothing needs protecting.
	Instructions string
}

// Protected reports whether the field must never be rewritten. Identity,
// contact, and format-sensitive fields qualify; address fields do not — the
// masking layer preserves those through a rewrite instead.
func (c Context) Protected() bool {
	return c.IsName || c.IsEmail || c.IsPhone || c.IsID || c.IsDate || c.InputType == "url"
}

// Classify derives a field's Context from its descriptor and current value.
func Classify(desc forms.FieldDescriptor, value string) Context {
	c := Context{
		Label:       desc.Label,
		Placeholder: desc.Placeholder,
		InputType:   desc.InputType,
		Name:        desc.Name,
	}

	meta := strings.ToLower(desc.Label + " " + desc.Placeholder + " " + desc.Name)

	c.IsName = nameRe.MatchString(meta)
	c.IsEmail = emailRe.MatchString(meta) || desc.InputType == "email"
	c.IsPhone = phoneRe.MatchString(meta) || desc.InputType == "tel"
	c.IsID = idRe.MatchString(meta)
	c.IsURL = urlRe.MatchString(meta) || desc.InputType == "url"
	c.IsDate = dateRe.MatchString(meta) || dateInputTypes[desc.InputType]
	c.IsAddress = addressRe.MatchString(meta)

	c.HasNumbers = digitRe.MatchString(value)
	c.HasProperNouns = hasProperNouns(value)

	c.Instructions = buildInstructions(c, value)
	return c
}

// hasProperNouns reports whether value contains a capitalised word followed
// by lowercase letters, a cheap proxy for names and places.
func hasProperNouns(value string) bool {
	for _, word := range strings.Fields(value) {
		runes := []rune(word)
		if len(runes) < 2 {
			continue
		}
		if !unicode.IsUpper(runes[0]) {
			continue
		}
		rest := string(runes[1:])
		if rest == strings.ToLower(rest) && strings.ContainsFunc(rest, unicode.IsLetter) {
			return true
		}
	}
	return false
}

func buildInstructions(c Context, value string) string {
	var hints []string
	add := func(h string) { hints = append(hints, h) }

	if c.IsName || c.HasProperNouns {
		add("Do NOT change any names or proper nouns")
	}
	if c.HasNumbers {
		add("Do NOT change any numbers")
	}
	if c.IsEmail {
		add("Do NOT change any email addresses")
	}
	if c.IsPhone {
		add("Do NOT change any phone numbers")
	}
	if c.IsID {
		add("Do NOT change any IDs or identification numbers")
	}
	if c.IsURL {
		add("Do NOT change any URLs or links")
	}
	if c.IsDate {
		add("Do NOT change any dates or date formats")
	}
	if currencyRe.MatchString(value) {
		add("Do NOT change any currency amounts")
	}
	if percentRe.MatchString(value) {
		add("Do NOT change any percentages")
	}
	if c.IsAddress {
		add("Do NOT change any postal addresses")
	}
	if c.Label != "" {
		add("This is for: " + `"` + c.Label + `"`)
	} else if c.Placeholder != "" {
		add("Placeholder: " + `"` + c.Placeholder + `"`)
	}

	if len(hints) == 0 {
		return ""
	}
	return strings.Join(hints, ". ") + "."
}
