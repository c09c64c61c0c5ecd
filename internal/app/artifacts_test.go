package app

import (
	"context"
	"errors"
	"testing"

	"studypal/pkg/domain"
)

func TestSummaryGeneratedOnceThenCached(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"a fine summary"}}
	f := newFixture(gen)
	student := f.addUser(domain.RoleStudent)
	doc := f.addProcessedDocument("instructor-1", "long document text")

	first, err := f.app.Summary(context.Background(), student, doc.ID)
	if err != nil {
		t.Fatalf("first Summary: %v", err)
	}
	if first.Cached {
		t.Fatal("first call should not be cached")
	}
	if first.Content != "a fine summary" {
		t.Fatalf("summary = %q", first.Content)
	}

	second, err := f.app.Summary(context.Background(), student, doc.ID)
	if err != nil {
		t.Fatalf("second Summary: %v", err)
	}
	if !second.Cached {
		t.Fatal("second call should hit the cache")
	}
	if second.Content != first.Content {
		t.Fatalf("cached summary = %q, want %q", second.Content, first.Content)
	}
	if !second.GeneratedAt.Equal(first.GeneratedAt) {
		t.Fatalf("cached timestamp changed: %v vs %v", second.GeneratedAt, first.GeneratedAt)
	}
	if gen.callCount() != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.callCount())
	}
}

func TestStudyQuestionsCachedIndependentlyOfSummary(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"summary text", "1. question"}}
	f := newFixture(gen)
	student := f.addUser(domain.RoleStudent)
	doc := f.addProcessedDocument("instructor-1", "text")

	if _, err := f.app.Summary(context.Background(), student, doc.ID); err != nil {
		t.Fatalf("Summary: %v", err)
	}
	questions, err := f.app.StudyQuestions(context.Background(), student, doc.ID)
	if err != nil {
		t.Fatalf("StudyQuestions: %v", err)
	}
	if questions.Cached {
		t.Fatal("questions slot should be empty after only a summary call")
	}
	if questions.Content != "1. question" {
		t.Fatalf("questions = %q", questions.Content)
	}
	if gen.callCount() != 2 {
		t.Fatalf("generator calls = %d, want 2", gen.callCount())
	}
}

func TestSummaryFailureLeavesCacheEmpty(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream unavailable")}
	f := newFixture(gen)
	student := f.addUser(domain.RoleStudent)
	doc := f.addProcessedDocument("instructor-1", "text")

	if _, err := f.app.Summary(context.Background(), student, doc.ID); err == nil {
		t.Fatal("expected generation error")
	}

	// Retry succeeds after the upstream recovers.
	gen.mu.Lock()
	gen.err = nil
	gen.responses = []string{"recovered summary"}
	gen.mu.Unlock()

	result, err := f.app.Summary(context.Background(), student, doc.ID)
	if err != nil {
		t.Fatalf("retry Summary: %v", err)
	}
	if result.Cached {
		t.Fatal("failed attempt must not populate the cache")
	}
	if result.Content != "recovered summary" {
		t.Fatalf("summary = %q", result.Content)
	}
}

func TestMindMapGeneratedAndCached(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		"```json\n{\"title\": \"Water Cycle\", \"children\": [{\"name\": \"Evaporation\"}]}\n```",
	}}
	f := newFixture(gen)
	student := f.addUser(domain.RoleStudent)
	doc := f.addProcessedDocument("instructor-1", "text")

	first, err := f.app.MindMap(context.Background(), student, doc.ID)
	if err != nil {
		t.Fatalf("MindMap: %v", err)
	}
	if first.Degraded {
		t.Fatal("well-formed output should not degrade")
	}
	if first.MindMap.Title != "Water Cycle" {
		t.Fatalf("title = %q", first.MindMap.Title)
	}
	if len(first.MindMap.Children) != 1 || first.MindMap.Children[0].Name != "Evaporation" {
		t.Fatalf("children = %+v", first.MindMap.Children)
	}

	second, err := f.app.MindMap(context.Background(), student, doc.ID)
	if err != nil {
		t.Fatalf("cached MindMap: %v", err)
	}
	if !second.Cached {
		t.Fatal("second call should hit the cache")
	}
	if gen.callCount() != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.callCount())
	}
}

func TestMindMapMalformedOutputDegradesWithoutCaching(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		"this is not json",
		"{\"title\": \"Second Try\"}",
	}}
	f := newFixture(gen)
	student := f.addUser(domain.RoleStudent)
	doc := f.addProcessedDocument("instructor-1", "text")

	degraded, err := f.app.MindMap(context.Background(), student, doc.ID)
	if err != nil {
		t.Fatalf("MindMap: %v", err)
	}
	if !degraded.Degraded {
		t.Fatal("expected degraded result for malformed output")
	}
	if degraded.MindMap.Title != "Mind Map Generation Error" {
		t.Fatalf("placeholder title = %q", degraded.MindMap.Title)
	}

	// The placeholder was not cached; the retry reaches the model again.
	retry, err := f.app.MindMap(context.Background(), student, doc.ID)
	if err != nil {
		t.Fatalf("retry MindMap: %v", err)
	}
	if retry.Degraded {
		t.Fatal("retry should succeed")
	}
	if retry.MindMap.Title != "Second Try" {
		t.Fatalf("retry title = %q", retry.MindMap.Title)
	}
	if gen.callCount() != 2 {
		t.Fatalf("generator calls = %d, want 2", gen.callCount())
	}
}

func TestArtifactsRequireProcessedDocument(t *testing.T) {
	f := newFixture(nil)
	instructor := f.addUser(domain.RoleInstructor)
	doc := f.addProcessedDocument(instructor.ID, "text")
	if err := f.store.SetDocumentStatus(doc.ID, domain.StatusUploaded); err != nil {
		t.Fatalf("set status: %v", err)
	}

	if _, err := f.app.Summary(context.Background(), instructor, doc.ID); !errors.Is(err, ErrDocumentNotReady) {
		t.Fatalf("Summary err = %v, want ErrDocumentNotReady", err)
	}
	if _, err := f.app.MindMap(context.Background(), instructor, doc.ID); !errors.Is(err, ErrDocumentNotReady) {
		t.Fatalf("MindMap err = %v, want ErrDocumentNotReady", err)
	}
}
