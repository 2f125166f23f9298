package codeknowl

import (
	"context"
	"fmt"
	"strings"

	"github.com/jensjohansen/codeknowl/internal/errkind"
	"github.com/jensjohansen/codeknowl/internal/snapshot"
)

// Generator turns a system and user prompt into one prose answer.
// *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SystemPrompt restricts the generator to the evidence bundle.
const SystemPrompt = "You are CodeKnowl, an on-prem codebase analyst. " +
	"You must only use the provided evidence bundle. " +
	"If the evidence is insufficient, say so and ask for a file path or symbol name. " +
	"Do not invent file names or line numbers."

// AskResult is a generated answer with the evidence it was grounded on.
type AskResult struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Evidence  *Evidence  `json:"evidence"`
}

// UserPrompt renders the question and its evidence bundle as the user
// message. The bundle is sorted-key, indented JSON.
func UserPrompt(question string, ev *Evidence) (string, error) {
	data, err := snapshot.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("render evidence: %w", err)
	}
	var b strings.Builder
	b.WriteString("Question:\n")
	b.WriteString(question)
	b.WriteString("\n\nEvidence bundle (JSON):\n")
	b.Write(data)
	b.WriteString("\nReturn a short answer. Where applicable, mention cited file paths and line ranges.")
	return b.String(), nil
}

// Ask builds the evidence bundle for question and asks gen to answer from it
// alone. Generator errors are returned unmodified and never retried.
func (q *QueryBuilder) Ask(ctx context.Context, gen Generator, question string) (*AskResult, error) {
	if gen == nil {
		return nil, errkind.New(errkind.InvalidInput, "ask", "no answer generator configured")
	}
	ev, citations, err := q.Evidence(question)
	if err != nil {
		return nil, err
	}
	user, err := UserPrompt(question, ev)
	if err != nil {
		return nil, err
	}
	answer, err := gen.Generate(ctx, SystemPrompt, user)
	if err != nil {
		return nil, err
	}
	return &AskResult{Answer: answer, Citations: citations, Evidence: ev}, nil
}
