package moderation

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Reasons reported in Detection.Reason.
const (
	ReasonExternalKeyword = "external_keyword"
	ReasonContactPattern  = "contact_pattern"
)

// Detection is the outcome of an off-platform attempt check.
type Detection struct {
	Blocked     bool
	Reason      string
	MatchedTerm string
}

// Filter sanitizes and screens chat messages. All state is read-only after
// NewFilter returns, so a Filter is safe for concurrent use.
type Filter struct {
	// badWords holds each profanity entry as a lowercase token sequence,
	// longest first so multi-word entries win over their prefixes.
	badWords [][]string
	keywords []string

	// detectOrder is phone, email, URL. redactOrder is URL, email, phone so a
	// link or address containing digits is removed as one unit.
	detectOrder []contactPattern
	redactOrder []*regexp.Regexp

	mask      string
	redaction string
}

// NewFilter builds a Filter from rules.
func NewFilter(rules Rules) (*Filter, error) {
	patterns, err := rules.compilePatterns()
	if err != nil {
		return nil, err
	}

	f := &Filter{
		keywords:    normalizeTerms(rules.ExternalKeywords),
		detectOrder: patterns,
		mask:        rules.MaskToken,
		redaction:   rules.RedactionToken,
	}
	if f.mask == "" {
		f.mask = DefaultMaskToken
	}
	if f.redaction == "" {
		f.redaction = DefaultRedactionToken
	}
	if strings.TrimSpace(f.redaction) == "" {
		return nil, errors.New("redaction token must not be blank")
	}

	for i := len(patterns) - 1; i >= 0; i-- {
		f.redactOrder = append(f.redactOrder, patterns[i].re)
	}

	for _, word := range normalizeTerms(rules.BadWords) {
		spans := wordSpans(word)
		if len(spans) == 0 {
			continue
		}
		seq := make([]string, len(spans))
		for i, sp := range spans {
			seq[i] = word[sp.start:sp.end]
		}
		f.badWords = append(f.badWords, seq)
	}
	sort.SliceStable(f.badWords, func(i, j int) bool {
		if len(f.badWords[i]) != len(f.badWords[j]) {
			return len(f.badWords[i]) > len(f.badWords[j])
		}
		return len(strings.Join(f.badWords[i], " ")) > len(strings.Join(f.badWords[j], " "))
	})

	return f, nil
}

// MustNewFilter is NewFilter for rule sets known to be valid, such as DefaultRules.
func MustNewFilter(rules Rules) *Filter {
	f, err := NewFilter(rules)
	if err != nil {
		panic(err)
	}
	return f
}

// Sanitize returns raw with profanity masked and contact details redacted.
// Profanity is masked before contacts are redacted: an address whose local
// part ends in a bad word becomes "***@domain" and the email pattern no longer
// matches it. Detect blocks such a message before it is stored.
// Sanitize(Sanitize(x)) == Sanitize(x) for every x.
func (f *Filter) Sanitize(raw string) string {
	clean := f.maskProfanity(raw)
	clean = f.redactContacts(clean)
	// Cutting a contact match out of a longer token can leave a bare bad word.
	return f.maskProfanity(clean)
}

// Detect reports whether raw looks like an attempt to take the conversation
// off-platform. Keywords are checked before contact patterns; the first match wins.
func (f *Filter) Detect(raw string) Detection {
	lower := strings.ToLower(raw)
	for _, kw := range f.keywords {
		if strings.Contains(lower, kw) {
			return Detection{Blocked: true, Reason: ReasonExternalKeyword, MatchedTerm: kw}
		}
	}

	for _, p := range f.detectOrder {
		if p.re.MatchString(raw) {
			return Detection{Blocked: true, Reason: ReasonContactPattern, MatchedTerm: p.term}
		}
	}

	return Detection{}
}

func (f *Filter) redactContacts(text string) string {
	for _, re := range f.redactOrder {
		text = re.ReplaceAllLiteralString(text, f.redaction)
	}
	return text
}

func (f *Filter) maskProfanity(text string) string {
	if len(f.badWords) == 0 {
		return text
	}
	spans := wordSpans(text)
	if len(spans) == 0 {
		return text
	}

	lowered := make([]string, len(spans))
	for i, sp := range spans {
		lowered[i] = strings.ToLower(text[sp.start:sp.end])
	}

	var b strings.Builder
	last, masked := 0, false
	for i := 0; i < len(spans); {
		n := f.matchAt(text, spans, lowered, i)
		if n == 0 {
			i++
			continue
		}
		b.WriteString(text[last:spans[i].start])
		b.WriteString(f.mask)
		last = spans[i+n-1].end
		masked = true
		i += n
	}
	if !masked {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// matchAt returns how many tokens starting at i form a bad word, or 0.
// Tokens of a multi-word entry may only be separated by whitespace.
func (f *Filter) matchAt(text string, spans []span, lowered []string, i int) int {
	for _, seq := range f.badWords {
		n := len(seq)
		if i+n > len(spans) {
			continue
		}
		ok := true
		for j := 0; j < n; j++ {
			if lowered[i+j] != seq[j] {
				ok = false
				break
			}
			if j > 0 && strings.TrimSpace(text[spans[i+j-1].end:spans[i+j].start]) != "" {
				ok = false
				break
			}
		}
		if ok {
			return n
		}
	}
	return 0
}

type span struct {
	start, end int
}

// wordSpans returns the byte ranges of word tokens in text. Letters, digits,
// combining marks and underscore form words in any script.
func wordSpans(text string) []span {
	var spans []span
	start := -1
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			spans = append(spans, span{start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, span{start: start, end: len(text)})
	}
	return spans
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}
