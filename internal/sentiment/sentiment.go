// Package sentiment scores inquiry text with simple pattern lists so the
// draft generator can pick an appropriate tone. It is intentionally crude:
// the score is a hint, never a gate.
package sentiment

import (
	"regexp"
	"strings"
)

// Score is a coarse tone classification of inquiry text.
type Score string

const (
	Negative Score = "negative"
	Neutral  Score = "neutral"
	Positive Score = "positive"
)

var negativePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(refund|broken|damaged|defect(ive)?|missing|never arrived|late|delay(ed)?)\b`),
	regexp.MustCompile(`(?i)\b(terrible|awful|worst|unacceptable|disappoint(ed|ing)?|angry|scam)\b`),
	regexp.MustCompile(`(?i)\b(cancel|return|complaint|dispute)\b`),
}

var positivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(thank(s| you)?|great|love(d|ly)?|perfect|awesome|wonderful)\b`),
	regexp.MustCompile(`(?i)\b(recommend|happy|pleased|satisfied)\b`),
}

// Classify scores text by counting negative and positive pattern hits.
// Negative hits dominate: a complaint wrapped in politeness is still a
// complaint.
func Classify(text string) Score {
	text = strings.TrimSpace(text)
	if text == "" {
		return Neutral
	}

	var neg, pos int
	for _, re := range negativePatterns {
		neg += len(re.FindAllStringIndex(text, -1))
	}
	for _, re := range positivePatterns {
		pos += len(re.FindAllStringIndex(text, -1))
	}

	switch {
	case neg > 0:
		return Negative
	case pos > 0:
		return Positive
	default:
		return Neutral
	}
}
