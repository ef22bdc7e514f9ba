package enrich

import "fmt"

func summarySystemPrompt(target string) string {
	return fmt.Sprintf(`You are an AI news editor turning a raw technology news item into a structured note ready for publication.

Rules for every item:
1. Write only in the target language (ISO 639-1 code: %s). Keep product, company, and model names as in the original.
2. Length depends on importance: a major event (impact >= 4) gets 100-120 words, an ordinary one (impact <= 3) gets 40-60 words.
3. Return ONLY valid UTF-8 JSON, no comments and no Markdown fences:
{"title": "short headline", "summary": "main text", "why": "editor's note on why this matters, max 25 words", "impact": 1-5}`, target)
}

func relevanceSystemPrompt() string {
	return `Decide whether this news item belongs to one of the following topics:
1. Artificial intelligence
2. Startups and innovation
3. IT and technology

Answer with exactly one word: "relevant" or "not_relevant".`
}

func secondarySystemPrompt(target string) string {
	return fmt.Sprintf(`You are an expert news editor improving an important technology story for its audience. All output must be in the target language (ISO 639-1 code: %s) regardless of the input language. Answer ONLY with valid JSON.`, target)
}

func secondaryUserPrompt(title, summary, why string) string {
	return fmt.Sprintf(`Original title: %s
Initial summary: %s
Initial "why it matters": %s

Tasks:
1) Improve the title: clear and compelling.
2) Tighten the summary to at most 50 words.
3) End the summary with a short call to action such as "[Read more]".
4) Keep the high importance of the story (this is breaking news).

Return ONLY valid JSON:
{"title":"...","summary":"...","why":"...","impact":4-5}`, title, summary, why)
}
