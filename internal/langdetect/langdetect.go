// Package langdetect identifies the language of short news texts. Anything
// below a hard confidence floor is reported as unknown rather than guessed,
// so downstream translation never trusts a shaky detection.
package langdetect

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// Unknown is returned when the text is too short or detection is not
// confident enough.
const Unknown = "unknown"

const (
	minTextLength = 10
	minConfidence = 0.99
)

// Detector wraps a lingua language detector behind the confidence floor.
type Detector struct {
	inner lingua.LanguageDetector
}

// New builds a detector over all spoken languages.
func New() *Detector {
	return &Detector{
		inner: lingua.NewLanguageDetectorBuilder().
			FromAllSpokenLanguages().
			Build(),
	}
}

// Detect returns the lowercase ISO 639-1 code of the text's language, or
// Unknown when the text is shorter than ten characters or the detector's
// confidence is below 0.99.
func (d *Detector) Detect(text string) string {
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < minTextLength {
		return Unknown
	}

	language, ok := d.inner.DetectLanguageOf(trimmed)
	if !ok {
		return Unknown
	}

	if d.inner.ComputeLanguageConfidence(trimmed, language) < minConfidence {
		return Unknown
	}

	return strings.ToLower(language.IsoCode639_1().String())
}
