package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/openai"
)

const classifierSystemPrompt = `You extract one field at a time from a dispatch call transcript between an agent and a truck driver.

Rules:
- Answer with the value only: no explanation, no punctuation around it.
- When a list of allowed values is given, answer with EXACTLY one of them.
- If the transcript does not contain the information, answer UNKNOWN.
- Never guess or fabricate a value.`

// unknownMarker is what the model answers when a field is absent from the
// transcript.
const unknownMarker = "UNKNOWN"

// LLMClassifier answers constrained extraction questions through the
// reasoning service, one field per request so enum conformance can be
// validated per answer.
type LLMClassifier struct {
	llm *openai.Client
}

func NewLLMClassifier(llm *openai.Client) *LLMClassifier {
	return &LLMClassifier{llm: llm}
}

func (c *LLMClassifier) Classify(ctx context.Context, transcript string, spec FieldSpec) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Transcript:\n---\n%s---\n\n%s\n", transcript, spec.Question)
	if spec.Allowed != nil {
		fmt.Fprintf(&b, "Answer with exactly one of: %s. Answer %s if the transcript does not say.\n",
			strings.Join(spec.Allowed, ", "), unknownMarker)
	} else {
		fmt.Fprintf(&b, "Answer with the value only, or %s if the transcript does not say.\n", unknownMarker)
	}

	messages := []openai.Message{
		{Role: "system", Content: classifierSystemPrompt},
		{Role: "user", Content: b.String()},
	}

	raw, err := c.llm.Complete(ctx, messages, 64)
	if err != nil {
		return "", fmt.Errorf("classify %s: %w", spec.Name, err)
	}

	answer := strings.TrimSpace(raw)
	if strings.EqualFold(answer, unknownMarker) {
		return "", nil
	}
	return answer, nil
}
