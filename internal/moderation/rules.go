// Package moderation screens negotiation chat messages. It redacts profanity and
// contact details for display and flags attempts to move a conversation off
// the platform.
package moderation

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultMaskToken replaces a profane word.
	DefaultMaskToken = "***"
	// DefaultRedactionToken replaces a phone number, email address or link.
	DefaultRedactionToken = "[-removed-]"
)

// Generic terms reported by Detect when a contact pattern, not a keyword, matched.
const (
	TermPhoneNumber  = "phone number"
	TermEmailAddress = "email address"
	TermURL          = "URL/link"
)

// Pattern sources. None of them uses \b so that redacting one match can never
// turn a neighbouring run of characters into a new match.
const (
	PhonePattern = `(?:\+\d{1,3}[\s.-]?)?\d(?:[\s.-]?\d){6,14}`
	EmailPattern = `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`
	URLPattern   = `(?i)(?:https?://|www\.)\S+`
)

// Rules is the configuration a Filter is built from. Word lists are data, not
// code, so deployments can localize or extend them.
type Rules struct {
	BadWords         []string
	ExternalKeywords []string
	MaskToken        string
	RedactionToken   string

	// Optional overrides; empty means the package default.
	PhonePattern string
	EmailPattern string
	URLPattern   string
}

// DefaultBadWords is the built-in profanity list.
var DefaultBadWords = []string{
	"idiot", "stupid", "fool", "moron", "dumb", "loser", "scammer", "liar",
	"damn", "crap", "bastard", "jerk",
	"غبي", "حمار", "كلب", "حرامي", "نصاب",
}

// DefaultExternalKeywords lists app names and phrases that signal an attempt to
// continue the conversation somewhere else.
var DefaultExternalKeywords = []string{
	"whatsapp", "whats app", "telegram", "instagram", "facebook",
	"messenger", "snapchat", "tiktok", "viber",
	"call me", "text me", "phone number", "my number", "contact me",
	"واتساب", "واتس", "تليجرام", "تلجرام", "انستجرام", "انستا", "فيسبوك", "فيس بوك",
	"سناب", "كلمني", "اتصل بي", "رقمي", "رقم تليفوني", "رقم الموبايل",
}

// DefaultRules returns the built-in rule set.
func DefaultRules() Rules {
	return Rules{
		BadWords:         append([]string(nil), DefaultBadWords...),
		ExternalKeywords: append([]string(nil), DefaultExternalKeywords...),
		MaskToken:        DefaultMaskToken,
		RedactionToken:   DefaultRedactionToken,
	}
}

// contactPattern pairs a compiled pattern with the term Detect reports for it.
type contactPattern struct {
	term string
	re   *regexp.Regexp
}

func (r Rules) compilePatterns() ([]contactPattern, error) {
	sources := []struct {
		term, src, fallback string
	}{
		{TermPhoneNumber, r.PhonePattern, PhonePattern},
		{TermEmailAddress, r.EmailPattern, EmailPattern},
		{TermURL, r.URLPattern, URLPattern},
	}

	patterns := make([]contactPattern, 0, len(sources))
	for _, s := range sources {
		src := s.src
		if src == "" {
			src = s.fallback
		}
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("compile %s pattern: %w", s.term, err)
		}
		patterns = append(patterns, contactPattern{term: s.term, re: re})
	}
	return patterns, nil
}

// normalizeTerms lowercases, trims and de-duplicates a term list.
func normalizeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
