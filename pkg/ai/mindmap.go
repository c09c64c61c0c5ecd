package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"studypal/pkg/domain"
)

// DecodeMindMap parses model output into a mind-map tree. Models often
// wrap JSON in markdown fences despite instructions, so fences are
// stripped first. Any decode failure maps to ErrMalformedMindMap.
func DecodeMindMap(raw string) (domain.MindMap, error) {
	text := stripCodeFences(raw)
	if text == "" {
		return domain.MindMap{}, fmt.Errorf("%w: empty output", ErrMalformedMindMap)
	}
	var mindMap domain.MindMap
	if err := json.Unmarshal([]byte(text), &mindMap); err != nil {
		return domain.MindMap{}, fmt.Errorf("%w: %v", ErrMalformedMindMap, err)
	}
	if strings.TrimSpace(mindMap.Title) == "" {
		return domain.MindMap{}, fmt.Errorf("%w: missing title", ErrMalformedMindMap)
	}
	return mindMap, nil
}

// PlaceholderMindMap is the degraded tree returned when model output
// cannot be decoded. Callers surface it instead of an exception and do
// not cache it.
func PlaceholderMindMap() domain.MindMap {
	return domain.MindMap{
		Title: "Mind Map Generation Error",
		Children: []domain.MindMapNode{
			{
				Name: "Unable to generate structured mind map",
				Children: []domain.MindMapNode{
					{Name: "The AI response could not be parsed as JSON"},
					{Name: "Please try again or contact support"},
				},
			},
		},
	}
}

func stripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
