package ai

import (
	"context"
	"fmt"
	"strings"

	"studypal/pkg/domain"
)

// Document text is cut to a fixed prefix before it enters a prompt.
// These are hard cost bounds, not quality tuning.
const (
	chatDocumentLimit      = 8000
	summaryDocumentLimit   = 10000
	questionsDocumentLimit = 8000
	mindMapDocumentLimit   = 10000

	// At most this many prior turns are spelled out inside the prompt,
	// regardless of how much history the caller supplies.
	maxHistoryInPrompt = 10
)

// HistoryMessage is one prior turn handed to the responder.
type HistoryMessage struct {
	Role    string
	Content string
}

// Responder turns document text into chat replies and derived study
// artifacts. It is stateless; all persistence happens in the caller.
type Responder struct {
	generator TextGenerator
	model     string
}

// NewResponder wraps a text generator. A nil generator produces a
// responder that reports ErrNotConfigured on every call.
func NewResponder(generator TextGenerator, model string) *Responder {
	return &Responder{generator: generator, model: model}
}

// Model returns the model identifier recorded in assistant message metadata.
func (r *Responder) Model() string {
	return r.model
}

// Configured reports whether a generator is available.
func (r *Responder) Configured() bool {
	return r != nil && r.generator != nil
}

// ChatTurn answers a question about a document given prior history.
func (r *Responder) ChatTurn(ctx context.Context, documentText, question string, history []HistoryMessage) (string, error) {
	if !r.Configured() {
		return "", ErrNotConfigured
	}
	systemPrompt := fmt.Sprintf(
		"You are an AI assistant helping students understand and learn from documents. "+
			"You have access to the following document content:\n\n%s\n\n"+
			"Please answer questions about this document accurately and helpfully. "+
			"If the question cannot be answered from the document content, politely say so. "+
			"Provide clear, educational responses that help the student learn.",
		truncateRunes(documentText, chatDocumentLimit),
	)
	var sb strings.Builder
	if len(history) > maxHistoryInPrompt {
		history = history[len(history)-maxHistoryInPrompt:]
	}
	for _, msg := range history {
		if msg.Role == domain.MessageRoleAssistant {
			sb.WriteString("Assistant: ")
		} else {
			sb.WriteString("Student: ")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Student: ")
	sb.WriteString(question)
	text, err := r.generator.GenerateText(ctx, systemPrompt, sb.String())
	if err != nil {
		return "", fmt.Errorf("generate chat reply: %w", err)
	}
	return text, nil
}

// Summarize produces a concise document summary.
func (r *Responder) Summarize(ctx context.Context, documentText string) (string, error) {
	if !r.Configured() {
		return "", ErrNotConfigured
	}
	prompt := fmt.Sprintf(
		"Please provide a concise summary of the following document. "+
			"Include the main topics, key points, and any important concepts:\n\n%s\n\nSummary:",
		truncateRunes(documentText, summaryDocumentLimit),
	)
	text, err := r.generator.GenerateText(ctx, "", prompt)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return text, nil
}

// SuggestQuestions produces a numbered list of study questions.
func (r *Responder) SuggestQuestions(ctx context.Context, documentText string) (string, error) {
	if !r.Configured() {
		return "", ErrNotConfigured
	}
	prompt := fmt.Sprintf(
		"Based on the following document content, generate 5-7 thoughtful study questions "+
			"that would help a student understand and remember the key concepts.\n\n"+
			"Document content:\n%s\n\nPlease format as a numbered list of questions:",
		truncateRunes(documentText, questionsDocumentLimit),
	)
	text, err := r.generator.GenerateText(ctx, "", prompt)
	if err != nil {
		return "", fmt.Errorf("generate study questions: %w", err)
	}
	return text, nil
}

// MindMap produces a hierarchical topic tree for a document. Malformed
// model output is reported as ErrMalformedMindMap, never as a raw decode
// error.
func (r *Responder) MindMap(ctx context.Context, documentText string) (domain.MindMap, error) {
	if !r.Configured() {
		return domain.MindMap{}, ErrNotConfigured
	}
	prompt := fmt.Sprintf(
		"Based on the following document content, create a hierarchical mind map structure.\n\n"+
			"Document content:\n%s\n\n"+
			"Please return the mind map as a JSON structure with the following format:\n"+
			"{\"title\": \"Main Topic/Document Title\", \"children\": ["+
			"{\"name\": \"Main Topic 1\", \"children\": [{\"name\": \"Subtopic 1.1\", \"children\": [{\"name\": \"Detail 1.1.1\"}]}]}]}\n\n"+
			"Make sure to:\n"+
			"1. Identify the main themes and topics from the document\n"+
			"2. Create logical hierarchical relationships\n"+
			"3. Include key concepts, facts, and details\n"+
			"4. Keep node names concise but descriptive\n"+
			"5. Create 3-5 levels of hierarchy where appropriate\n"+
			"6. Return ONLY the JSON structure, no additional text",
		truncateRunes(documentText, mindMapDocumentLimit),
	)
	text, err := r.generator.GenerateText(ctx, "", prompt)
	if err != nil {
		return domain.MindMap{}, fmt.Errorf("generate mind map: %w", err)
	}
	return DecodeMindMap(text)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
