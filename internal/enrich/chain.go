package enrich

import (
	"context"
	"log/slog"

	"newspulse/internal/langdetect"
	"newspulse/internal/ports"
)

// NeedsTranslationMarker prefixes text the fallback chain could not bring
// into the target language. Marked text is delivered, never dropped.
const NeedsTranslationMarker = "[needs translation]"

// Outcome is the result of running one text through the translation chain.
type Outcome struct {
	Text     string
	Lang     string
	Attempts int
	Marked   bool
}

// Chain forces text into the target language through an ordered sequence of
// degraded strategies: translate with the detected source language, retry
// with a fixed default source, then mark the original text.
type Chain struct {
	translator ports.Translator
	detector   ports.Detector
	target     string
	fallback   string
	logger     *slog.Logger
}

// NewChain wires the chain. fallbackSource is the source language forced on
// the second attempt when the first leaves the text outside the target.
func NewChain(translator ports.Translator, detector ports.Detector, target, fallbackSource string, logger *slog.Logger) *Chain {
	if fallbackSource == "" {
		fallbackSource = "en"
	}
	return &Chain{
		translator: translator,
		detector:   detector,
		target:     target,
		fallback:   fallbackSource,
		logger:     logger,
	}
}

// Target returns the language the chain translates into.
func (c *Chain) Target() string { return c.target }

// Ensure runs the per-field state machine: detect, translate, re-detect,
// retry once with the forced source, then fall back to marking. It never
// returns an error; the worst case is the original text with a marker.
func (c *Chain) Ensure(ctx context.Context, text string) Outcome {
	detected := c.detector.Detect(text)
	if detected == c.target {
		return Outcome{Text: text, Lang: c.target}
	}

	if c.translator == nil {
		return c.marked(text, detected, 0)
	}

	source := detected
	if source == langdetect.Unknown {
		source = "auto"
	}

	first, err := c.translator.Translate(ctx, text, source, c.target)
	if err == nil {
		if lang := c.detector.Detect(first); lang == c.target {
			return Outcome{Text: first, Lang: c.target, Attempts: 1}
		}
		c.debug("first translation attempt left text outside target", "source", source)
	} else {
		c.debug("first translation attempt failed", "error", err)
	}

	second, err := c.translator.Translate(ctx, text, c.fallback, c.target)
	if err == nil {
		if lang := c.detector.Detect(second); lang == c.target {
			return Outcome{Text: second, Lang: c.target, Attempts: 2}
		}
		c.debug("second translation attempt left text outside target", "source", c.fallback)
	} else {
		c.debug("second translation attempt failed", "error", err)
	}

	return c.marked(text, detected, 2)
}

func (c *Chain) marked(text, lang string, attempts int) Outcome {
	return Outcome{
		Text:     NeedsTranslationMarker + " " + text,
		Lang:     lang,
		Attempts: attempts,
		Marked:   true,
	}
}

func (c *Chain) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
