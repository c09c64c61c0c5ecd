package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studypal/pkg/ai"
	"studypal/pkg/domain"
)

// TextArtifact is a cached summary or study-question result.
type TextArtifact struct {
	Content     string
	GeneratedAt time.Time
	Cached      bool
}

// MindMapArtifact is the cached or freshly generated mind map. Degraded
// marks the placeholder tree returned on undecodable model output; it is
// never written to the cache.
type MindMapArtifact struct {
	MindMap     domain.MindMap
	GeneratedAt time.Time
	Cached      bool
	Degraded    bool
}

// Summary returns the cached document summary, generating and caching
// it on first request. The cache is permanent; a slot once filled is
// returned without another model call.
func (a *App) Summary(ctx context.Context, viewer domain.User, documentID string) (TextArtifact, error) {
	doc, err := a.readyDocument(viewer, documentID)
	if err != nil {
		return TextArtifact{}, err
	}
	if doc.CachedSummary != "" && doc.SummaryGeneratedAt != nil {
		return TextArtifact{Content: doc.CachedSummary, GeneratedAt: *doc.SummaryGeneratedAt, Cached: true}, nil
	}

	aiCtx, cancel := context.WithTimeout(ctx, a.aiTimeout)
	defer cancel()
	summary, err := a.responder.Summarize(aiCtx, doc.ProcessedText)
	if err != nil {
		return TextArtifact{}, err
	}
	generatedAt := time.Now().UTC()
	if err := a.store.SetDocumentSummary(doc.ID, summary, generatedAt); err != nil {
		return TextArtifact{}, fmt.Errorf("cache summary: %w", err)
	}
	return TextArtifact{Content: summary, GeneratedAt: generatedAt}, nil
}

// StudyQuestions returns the cached study questions, generating and
// caching them on first request.
func (a *App) StudyQuestions(ctx context.Context, viewer domain.User, documentID string) (TextArtifact, error) {
	doc, err := a.readyDocument(viewer, documentID)
	if err != nil {
		return TextArtifact{}, err
	}
	if doc.CachedStudyQuestions != "" && doc.QuestionsGeneratedAt != nil {
		return TextArtifact{Content: doc.CachedStudyQuestions, GeneratedAt: *doc.QuestionsGeneratedAt, Cached: true}, nil
	}

	aiCtx, cancel := context.WithTimeout(ctx, a.aiTimeout)
	defer cancel()
	questions, err := a.responder.SuggestQuestions(aiCtx, doc.ProcessedText)
	if err != nil {
		return TextArtifact{}, err
	}
	generatedAt := time.Now().UTC()
	if err := a.store.SetDocumentStudyQuestions(doc.ID, questions, generatedAt); err != nil {
		return TextArtifact{}, fmt.Errorf("cache study questions: %w", err)
	}
	return TextArtifact{Content: questions, GeneratedAt: generatedAt}, nil
}

// MindMap returns the cached mind map, generating and caching it on
// first request. Undecodable model output yields the placeholder tree
// with Degraded set; nothing is cached so a later request can retry.
func (a *App) MindMap(ctx context.Context, viewer domain.User, documentID string) (MindMapArtifact, error) {
	doc, err := a.readyDocument(viewer, documentID)
	if err != nil {
		return MindMapArtifact{}, err
	}
	if doc.CachedMindMap != nil && doc.MindMapGeneratedAt != nil {
		return MindMapArtifact{MindMap: *doc.CachedMindMap, GeneratedAt: *doc.MindMapGeneratedAt, Cached: true}, nil
	}

	aiCtx, cancel := context.WithTimeout(ctx, a.aiTimeout)
	defer cancel()
	mindMap, err := a.responder.MindMap(aiCtx, doc.ProcessedText)
	if errors.Is(err, ai.ErrMalformedMindMap) {
		return MindMapArtifact{
			MindMap:     ai.PlaceholderMindMap(),
			GeneratedAt: time.Now().UTC(),
			Degraded:    true,
		}, nil
	}
	if err != nil {
		return MindMapArtifact{}, err
	}
	generatedAt := time.Now().UTC()
	if err := a.store.SetDocumentMindMap(doc.ID, mindMap, generatedAt); err != nil {
		return MindMapArtifact{}, fmt.Errorf("cache mind map: %w", err)
	}
	return MindMapArtifact{MindMap: mindMap, GeneratedAt: generatedAt}, nil
}

func (a *App) readyDocument(viewer domain.User, documentID string) (domain.Document, error) {
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return domain.Document{}, fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return domain.Document{}, ErrDocumentNotFound
	}
	if !canView(viewer, doc) {
		return domain.Document{}, ErrForbidden
	}
	if doc.Status != domain.StatusProcessed {
		return domain.Document{}, ErrDocumentNotReady
	}
	return doc, nil
}
