// Package prompt turns an uploaded transcript into the role-tagged message
// sequences stored with the request and sent to the inference endpoint.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"chat-risk-analysis/backend/internal/models"
)

// AnalystTemplateVersion identifies the built-in analyst rubric.
const AnalystTemplateVersion = "2024-06-analyst-v1"

// AnalystTemplate is the default system message for the analysis call.
const AnalystTemplate = `You are an expert analyst who reviews conversations between a user and an AI character and, using the reference documents provided, identifies risk signals and notable findings.

Assess the conversation and produce a report with the following sections:

1. Overall risk level: one of HIGH, MEDIUM or LOW.
2. Evidence: quote the specific user messages that support the rating. Do not paraphrase.
3. Risk categories: list each category that applies (self-harm, violence, abuse, exploitation, substance use, severe distress, other) with a one-line explanation.
4. Reference alignment: cite the reference documents that informed the rating and state how they apply.
5. Recommended follow-up: concrete next steps for a human reviewer.

Rules:
- Base every claim on the conversation text. If evidence is insufficient, say so and choose the lower rating.
- Do not invent facts about the user.
- Keep the report concise and use the section headings above.`

// AnalysisInstruction opens the trailing user message of the analysis sequence.
const AnalysisInstruction = "Analyze this conversation. Reference documents:"

// NoReferenceDocuments replaces the fragment block when retrieval found nothing.
const NoReferenceDocuments = "(no reference documents)"

// IntentMessage is the system message stored at the head of prompt_sent.
func IntentMessage(characterName string) models.StructuredMessage {
	return models.StructuredMessage{
		Role:    models.RoleSystem,
		Content: fmt.Sprintf("Analyze the conversation with %s.", characterName),
	}
}

// FromTranscript copies role and content of every transcript entry, preserving order.
func FromTranscript(transcript []models.ChatMessage) []models.StructuredMessage {
	out := make([]models.StructuredMessage, 0, len(transcript))
	for _, m := range transcript {
		out = append(out, models.StructuredMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// Initial returns the intent message followed by the transcript.
func Initial(characterName string, transcript []models.ChatMessage) []models.StructuredMessage {
	out := make([]models.StructuredMessage, 0, len(transcript)+1)
	out = append(out, IntentMessage(characterName))
	return append(out, FromTranscript(transcript)...)
}

// Flatten renders the transcript as newline-joined "role: content" lines.
func Flatten(transcript []models.ChatMessage) string {
	lines := make([]string, len(transcript))
	for i, m := range transcript {
		lines[i] = m.Role + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

// Build assembles the analysis sequence: the template as system message, the
// transcript, then one user message carrying the instruction and fragments.
func Build(transcript []models.ChatMessage, fragments []string, template string) []models.StructuredMessage {
	out := make([]models.StructuredMessage, 0, len(transcript)+2)
	out = append(out, models.StructuredMessage{Role: models.RoleSystem, Content: template})
	out = append(out, FromTranscript(transcript)...)

	body := NoReferenceDocuments
	if len(fragments) > 0 {
		body = strings.Join(fragments, "\n\n")
	}
	out = append(out, models.StructuredMessage{
		Role:    models.RoleUser,
		Content: AnalysisInstruction + "\n\n" + body,
	})
	return out
}

// LoadTemplate reads an analyst template from path, falling back to
// AnalystTemplate when path is empty.
func LoadTemplate(path string) (string, error) {
	if path == "" {
		return AnalystTemplate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read analyst template: %w", err)
	}
	tmpl := strings.TrimSpace(string(data))
	if tmpl == "" {
		return "", fmt.Errorf("analyst template %s is empty", path)
	}
	return tmpl, nil
}
