package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"newspulse/internal/langdetect"
)

// ruMark tags text the fake translator produced; the fake detector reads it
// back as russian.
const ruMark = "я "

type fakeDetector struct{}

func (fakeDetector) Detect(text string) string {
	if len([]rune(strings.TrimSpace(text))) < 10 {
		return langdetect.Unknown
	}
	if strings.Contains(text, strings.TrimSpace(ruMark)) {
		return "ru"
	}
	return "en"
}

// scriptedTranslator returns its replies in order, then errors.
type scriptedTranslator struct {
	replies []string
	errs    []error
	calls   int
	sources []string
}

func (s *scriptedTranslator) Translate(_ context.Context, text, source, _ string) (string, error) {
	s.sources = append(s.sources, source)
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", errors.New("translator exhausted")
}

func TestChainSkipsTextAlreadyInTarget(t *testing.T) {
	t.Parallel()

	tr := &scriptedTranslator{}
	chain := NewChain(tr, fakeDetector{}, "ru", "en", nil)

	out := chain.Ensure(context.Background(), ruMark+"уже переведено давно")

	assert.Equal(t, 0, out.Attempts)
	assert.False(t, out.Marked)
	assert.Equal(t, "ru", out.Lang)
	assert.Zero(t, tr.calls)
}

func TestChainFirstAttemptSucceeds(t *testing.T) {
	t.Parallel()

	tr := &scriptedTranslator{replies: []string{ruMark + "переведенный заголовок"}}
	chain := NewChain(tr, fakeDetector{}, "ru", "en", nil)

	out := chain.Ensure(context.Background(), "an english headline about models")

	assert.Equal(t, 1, out.Attempts)
	assert.False(t, out.Marked)
	assert.Equal(t, "ru", out.Lang)
	assert.Equal(t, []string{"en"}, tr.sources)
}

func TestChainSecondAttemptForcesDefaultSource(t *testing.T) {
	t.Parallel()

	tr := &scriptedTranslator{replies: []string{
		"still very much english text",
		ruMark + "вторая попытка удалась",
	}}
	chain := NewChain(tr, fakeDetector{}, "ru", "en", nil)

	out := chain.Ensure(context.Background(), "an english headline about models")

	assert.Equal(t, 2, out.Attempts)
	assert.False(t, out.Marked)
	assert.Equal(t, "ru", out.Lang)
	assert.Equal(t, []string{"en", "en"}, tr.sources)
}

func TestChainMarksAfterTwoFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("translate unavailable")
	tr := &scriptedTranslator{errs: []error{boom, boom}}
	chain := NewChain(tr, fakeDetector{}, "ru", "en", nil)

	original := "an english headline about models"
	out := chain.Ensure(context.Background(), original)

	assert.True(t, out.Marked)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, NeedsTranslationMarker+" "+original, out.Text)
	assert.Equal(t, "en", out.Lang)
}

func TestChainUnknownSourceTranslatesWithAuto(t *testing.T) {
	t.Parallel()

	tr := &scriptedTranslator{replies: []string{ruMark + "перевод с неизвестного"}}
	chain := NewChain(tr, fakeDetector{}, "ru", "en", nil)

	out := chain.Ensure(context.Background(), "shorttext")

	assert.Equal(t, "ru", out.Lang)
	assert.Equal(t, []string{"auto"}, tr.sources)
}

func TestChainWithoutTranslatorMarksImmediately(t *testing.T) {
	t.Parallel()

	chain := NewChain(nil, fakeDetector{}, "ru", "en", nil)
	out := chain.Ensure(context.Background(), "an english headline about models")

	assert.True(t, out.Marked)
	assert.Equal(t, 0, out.Attempts)
	assert.True(t, strings.HasPrefix(out.Text, NeedsTranslationMarker))
}
