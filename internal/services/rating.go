package services

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// KeywordTier maps a set of sentiment words to a rating
type KeywordTier struct {
	Name   string
	Rating int
	Words  []string
}

// RatingRules is the data driving RatingExtractor. Patterns are tried in
// order and must capture the rating digit as their first group. Tiers are
// scanned in order and the first tier with a matching word wins.
type RatingRules struct {
	Patterns      []string
	Tiers         []KeywordTier
	DefaultRating int
	MinComment    int
}

// DefaultRatingRules returns the shipped pattern list and vocabulary
func DefaultRatingRules() RatingRules {
	return RatingRules{
		Patterns: []string{
			// "5 - great", "5 great", "5/5 great", "5 stars, great", "5-star service"
			`^\s*(\d)(?:\s*-?\s*(?:stars?\b|/\s*5\b|out\s+of\s+5\b))?(?:\s*[-–—:.,!)]+\s*|\s+|$)`,
			`(?:\brating\s*[:=]?\s*)?\b(\d)\s*-?\s*stars?\b`,
			`(?:\brating\s*[:=]?\s*)?\b(\d)\s*/\s*5\b`,
			`\brating\s*[:=]?\s*(\d)\b`,
			`\b(\d)\s+out\s+of\s+5\b`,
			`\brate\s*[:=]?\s*(\d)\b`,
			`\bscore\s*[:=]?\s*(\d)\b`,
			`\bgive\s*[:=]?\s*(?:it\s+|you\s+)?(\d)\b`,
		},
		Tiers: []KeywordTier{
			{Name: "excellent", Rating: 5, Words: []string{
				"excellent", "amazing", "outstanding", "perfect", "fantastic", "wonderful",
				"superb", "awesome", "brilliant", "exceptional", "loved", "love",
			}},
			{Name: "very good", Rating: 4, Words: []string{
				"very good", "great", "really good", "impressive", "delicious", "enjoyed",
			}},
			{Name: "good", Rating: 3, Words: []string{
				"good", "nice", "fine", "okay", "ok", "decent", "satisfied", "average",
			}},
			{Name: "poor", Rating: 2, Words: []string{
				"poor", "bad", "disappointing", "disappointed", "cold", "late", "mediocre", "slow",
			}},
			{Name: "terrible", Rating: 1, Words: []string{
				"terrible", "awful", "horrible", "worst", "disgusting", "unacceptable",
			}},
		},
		DefaultRating: 3,
		MinComment:    3,
	}
}

type compiledTier struct {
	rating int
	re     *regexp.Regexp
}

// RatingExtractor turns a free-text reply into a 1-5 rating and a comment
type RatingExtractor struct {
	patterns      []*regexp.Regexp
	tiers         []compiledTier
	defaultRating int
	minComment    int
}

// NewRatingExtractor compiles rules. Matching is case-insensitive and runs on
// the original text so match offsets stay valid for comment extraction.
func NewRatingExtractor(rules RatingRules) (*RatingExtractor, error) {
	e := &RatingExtractor{
		defaultRating: rules.DefaultRating,
		minComment:    rules.MinComment,
	}
	for _, p := range rules.Patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, err
		}
		e.patterns = append(e.patterns, re)
	}
	for _, tier := range rules.Tiers {
		if len(tier.Words) == 0 {
			continue
		}
		words := make([]string, 0, len(tier.Words))
		for _, w := range tier.Words {
			parts := strings.Fields(w)
			for i := range parts {
				parts[i] = regexp.QuoteMeta(parts[i])
			}
			words = append(words, strings.Join(parts, `\s+`))
		}
		re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`)
		if err != nil {
			return nil, err
		}
		e.tiers = append(e.tiers, compiledTier{rating: tier.Rating, re: re})
	}
	if e.defaultRating < 1 || e.defaultRating > 5 {
		e.defaultRating = 3
	}
	return e, nil
}

// MustRatingExtractor is like NewRatingExtractor but panics on a bad rule set
func MustRatingExtractor(rules RatingRules) *RatingExtractor {
	e, err := NewRatingExtractor(rules)
	if err != nil {
		panic(err)
	}
	return e
}

// Extract returns a rating in 1..5 and the comment left after removing the
// rating expression. It never fails.
func (e *RatingExtractor) Extract(text string) (int, string) {
	original := strings.TrimSpace(text)

	rating, comment, ok := e.numeric(original)
	if !ok {
		rating = e.sentiment(original)
		comment = original
	}

	if len([]rune(comment)) < e.minComment {
		comment = original
	}
	return rating, comment
}

func (e *RatingExtractor) numeric(text string) (int, string, bool) {
	for _, re := range e.patterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if len(m) < 4 || m[2] < 0 {
				continue
			}
			n, err := strconv.Atoi(text[m[2]:m[3]])
			if err != nil || n < 1 || n > 5 {
				continue
			}
			return n, cleanComment(text[:m[0]] + " " + text[m[1]:]), true
		}
	}
	return 0, "", false
}

func (e *RatingExtractor) sentiment(text string) int {
	for _, tier := range e.tiers {
		if tier.re.MatchString(text) {
			return tier.rating
		}
	}
	return e.defaultRating
}

// cleanComment collapses whitespace and strips leading punctuation and dashes
func cleanComment(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || r == '–' || r == '—'
	})
}
