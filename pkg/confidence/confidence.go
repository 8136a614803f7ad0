// Package confidence converts a raw pattern match into a scored finding
// confidence in [0,1], combining surrounding context, entropy, validator
// outcome, format heuristics, and prior feedback.
package confidence

import (
	"encoding/base64"
	"encoding/hex"
	"math"
	"net/url"
	"regexp"
	"strings"

	ahocorasick "github.com/BobuSumisu/aho-corasick"
	"github.com/google/uuid"

	"github.com/quietridge/secscan/pkg/pattern"
)

// FeedbackLookup answers whether a (pattern-id, value) pair has prior
// feedback recorded, and if so, whether it was marked a false positive.
type FeedbackLookup interface {
	Lookup(patternID, value string) (isFalsePositive bool, known bool)
}

// NoFeedback is a FeedbackLookup that never has prior feedback. Useful in
// tests and for the confidence-only code paths that run before a feedback
// store is wired in.
type NoFeedback struct{}

func (NoFeedback) Lookup(string, string) (bool, bool) { return false, false }

// placeholderWords is the blocklist of words whose presence in the
// surrounding context strongly suggests a placeholder/example value rather
// than a live credential.
var placeholderWords = []string{
	"example", "placeholder", "test", "demo", "sample", "mock", "fake",
	"dummy", "your_api_key_here", "replace_with", "changeme", "xxxxxxxx",
}

var placeholderTrie = ahocorasick.NewTrieBuilder().AddStrings(placeholderWords).Build()

var (
	assignmentRe = regexp.MustCompile(`[:=]\s*["']?$`)
	envAccessRe  = regexp.MustCompile(`(?i)(os\.environ|getenv|process\.env|ENV\[)`)
	configKeyRe  = regexp.MustCompile(`(?i)(config|settings|options)\s*[.\[]`)
	commentRe    = regexp.MustCompile(`(^|\n)\s*(//|#|--|\*)`)
)

// Breakdown records every adjustment applied, for diagnostics and tests.
type Breakdown struct {
	Base             float64
	ContextAdjust    float64
	EntropyAdjust    float64
	ValidatorAdjust  float64
	FormatAdjust     float64
	LengthAdjust     float64
	LearningFactor   float64
	FinalConfidence  float64
}

// Score computes the confidence for m, starting from its pattern's base
// confidence and applying the additive adjustments in spec §4.4, clamped to
// [0,1] at each step.
func Score(m pattern.RawMatch, feedback FeedbackLookup) Breakdown {
	b := Breakdown{Base: m.Pattern.BaseConfidence, LearningFactor: 1.0}
	conf := clamp(b.Base)

	ctxAdjust := contextAdjustment(m.ContextBefore)
	conf = clamp(conf + ctxAdjust)
	b.ContextAdjust = ctxAdjust

	entAdjust := entropyAdjustment(m.Value)
	conf = clamp(conf + entAdjust)
	b.EntropyAdjust = entAdjust

	if m.ValidatorRan {
		var vAdjust float64
		switch {
		case m.ValidatorErr != nil:
			vAdjust = -0.075
		case m.ValidatorOK:
			vAdjust = 0.15
		default:
			vAdjust = -0.15
		}
		conf = clamp(conf + vAdjust)
		b.ValidatorAdjust = vAdjust
	}

	fmtAdjust := formatAdjustment(m.Value)
	conf = clamp(conf + fmtAdjust)
	b.FormatAdjust = fmtAdjust

	lenAdjust := lengthAdjustment(m.Value, m.Pattern.MinLen, m.Pattern.MaxLen)
	conf = clamp(conf + lenAdjust)
	b.LengthAdjust = lenAdjust

	if fp, known := feedback.Lookup(m.Pattern.ID, m.Value); known {
		if fp {
			b.LearningFactor = 0.3
		} else {
			b.LearningFactor = 1.2
		}
		conf = clamp(conf * b.LearningFactor)
	}

	b.FinalConfidence = conf
	return b
}

func contextAdjustment(before string) float64 {
	var adjust float64
	if assignmentRe.MatchString(before) {
		adjust += 0.15
	}
	if envAccessRe.MatchString(before) {
		adjust += 0.20
	}
	if configKeyRe.MatchString(before) {
		adjust += 0.10
	}
	if placeholderTrie.MatchFirst([]byte(strings.ToLower(before))) != nil {
		adjust -= 0.30
	}
	if commentRe.MatchString(before) {
		adjust -= 0.20
	}
	return adjust
}

// entropyAdjustment scores the Shannon entropy of value in bits/char
// against fixed tiers.
func entropyAdjustment(value string) float64 {
	e := shannonEntropy(value)
	switch {
	case e >= 4.0:
		return 0.20
	case e >= 3.5:
		return 0.10
	case e >= 2.5:
		return 0.0
	case e >= 2.0:
		return -0.10
	default:
		return -0.25
	}
}

// shannonEntropy returns the Shannon entropy of s in bits per character.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	total := float64(len(s))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func formatAdjustment(value string) float64 {
	switch {
	case looksLikeJWT(value):
		return 0.05
	case looksLikeUUID(value):
		return 0.05
	case looksLikeHex(value):
		return 0.05
	case looksLikeBase64(value):
		return 0.05
	case looksLikeBool(value):
		return -0.25
	case looksLikeURL(value):
		return -0.15
	case isPureAlpha(value):
		return -0.15
	default:
		return 0
	}
}

func looksLikeJWT(v string) bool {
	parts := strings.Split(v, ".")
	return len(parts) == 3
}

func looksLikeUUID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}

func looksLikeHex(v string) bool {
	if len(v)%2 != 0 || len(v) == 0 {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}

func looksLikeBase64(v string) bool {
	if len(v) == 0 || len(v)%4 != 0 {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(v)
	return err == nil
}

func looksLikeBool(v string) bool {
	lower := strings.ToLower(v)
	return lower == "true" || lower == "false"
}

func looksLikeURL(v string) bool {
	u, err := url.Parse(v)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func isPureAlpha(v string) bool {
	for _, r := range v {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return v != ""
}

func lengthAdjustment(value string, minLen, maxLen int) float64 {
	if len(value) < 8 {
		return -0.15
	}
	if minLen > 0 && maxLen > 0 && len(value) >= minLen && len(value) <= maxLen {
		return 0.05
	}
	return 0
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
