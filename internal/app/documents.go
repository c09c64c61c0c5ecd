package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"studypal/internal/extract"
	"studypal/internal/util"
	"studypal/pkg/domain"
	"studypal/pkg/queue"
	"studypal/pkg/store"
)

// UploadDocument stores the file, records the document, and enqueues
// text extraction. Only instructors and admins may upload; the handler
// enforces that before calling here.
func (a *App) UploadDocument(ctx context.Context, uploader domain.User, filename string, size int64, r io.Reader) (domain.Document, queue.JobStatus, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return domain.Document{}, queue.JobStatus{}, fmt.Errorf("filename required")
	}
	if !extract.SupportedExtension(filename) {
		return domain.Document{}, queue.JobStatus{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(filename))
	}
	if size <= 0 || size > a.maxUploadBytes {
		return domain.Document{}, queue.JobStatus{}, ErrFileTooLarge
	}

	now := time.Now().UTC()
	doc := domain.Document{
		ID:               util.NewID(),
		UploadedBy:       uploader.ID,
		OriginalFilename: filename,
		SizeBytes:        size,
		MimeType:         extract.MimeType(filename),
		Status:           domain.StatusUploaded,
		CreatedAt:        now,
	}
	doc.StorageKey = fmt.Sprintf("documents/%s%s", doc.ID, strings.ToLower(filepath.Ext(filename)))

	if err := a.objects.Put(ctx, doc.StorageKey, r, size, doc.MimeType); err != nil {
		return domain.Document{}, queue.JobStatus{}, fmt.Errorf("store upload: %w", err)
	}
	if err := a.store.SaveDocument(doc); err != nil {
		return domain.Document{}, queue.JobStatus{}, fmt.Errorf("save document: %w", err)
	}

	var job queue.JobStatus
	if a.queue != nil {
		var err error
		job, err = a.queue.Enqueue(ctx, doc.ID)
		if err != nil {
			return domain.Document{}, queue.JobStatus{}, fmt.Errorf("enqueue extraction: %w", err)
		}
	}
	return doc, job, nil
}

// ProcessDocument is the extraction worker entrypoint. Infrastructure
// failures return an error so the queue retries; extraction failures
// mark the document failed and do not retry.
func (a *App) ProcessDocument(ctx context.Context, documentID string) error {
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if !ok {
		slog.Warn("extraction job for missing document", "document_id", documentID)
		return nil
	}
	if err := a.store.SetDocumentStatus(doc.ID, domain.StatusProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	obj, err := a.objects.Get(ctx, doc.StorageKey)
	if err != nil {
		return fmt.Errorf("fetch upload: %w", err)
	}
	data, err := io.ReadAll(obj)
	obj.Close()
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}

	rawText, err := extract.Text(data, doc.OriginalFilename)
	if err != nil {
		slog.Error("text extraction failed", "document_id", doc.ID, "error", err)
		if ferr := a.store.SetDocumentFailed(doc.ID, map[string]string{
			"extraction_error": err.Error(),
		}); ferr != nil {
			return fmt.Errorf("mark failed: %w", ferr)
		}
		return nil
	}

	processedText := extract.Clean(rawText)
	metadata := map[string]string{
		"word_count":            strconv.Itoa(extract.WordCount(processedText)),
		"character_count":       strconv.Itoa(len([]rune(processedText))),
		"extraction_successful": "true",
	}
	if err := a.store.SetDocumentText(doc.ID, rawText, processedText, metadata, time.Now().UTC()); err != nil {
		return fmt.Errorf("save extracted text: %w", err)
	}
	slog.Info("document processed", "document_id", doc.ID, "words", metadata["word_count"])
	return nil
}

// GetDocument returns a document the viewer is allowed to see.
func (a *App) GetDocument(viewer domain.User, documentID string) (domain.Document, error) {
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
	return doc, nil
}

// ListDocuments lists documents visible to the viewer.
func (a *App) ListDocuments(viewer domain.User, status domain.DocumentStatus, offset, limit int) ([]domain.Document, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	docs, total, err := a.store.ListDocuments(store.DocumentFilter{
		ViewerID:   viewer.ID,
		ViewerRole: viewer.Role,
		Status:     status,
		Offset:     offset,
		Limit:      limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	return docs, total, nil
}

// DeleteDocument removes a document, its sessions and messages, and the
// stored file. Only the uploader or an admin may delete.
func (a *App) DeleteDocument(ctx context.Context, viewer domain.User, documentID string) error {
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return ErrDocumentNotFound
	}
	if doc.UploadedBy != viewer.ID && viewer.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	if err := a.store.DeleteSessionsForDocument(doc.ID); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	if err := a.store.DeleteDocument(doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := a.objects.Delete(ctx, doc.StorageKey); err != nil {
		// Row is gone; the orphaned object is logged, not fatal.
		slog.Warn("delete stored file", "document_id", doc.ID, "error", err)
	}
	return nil
}

// ExtractionJob reports queue status for an extraction job.
func (a *App) ExtractionJob(ctx context.Context, jobID string) (queue.JobStatus, bool, error) {
	if a.queue == nil {
		return queue.JobStatus{}, false, nil
	}
	return a.queue.GetJob(ctx, jobID)
}

// canView applies role visibility: admins see everything, instructors
// see their own uploads plus anything processed, students see processed
// documents only.
func canView(viewer domain.User, doc domain.Document) bool {
	switch viewer.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleInstructor:
		return doc.UploadedBy == viewer.ID || doc.Status == domain.StatusProcessed
	default:
		return doc.Status == domain.StatusProcessed
	}
}

// canChat applies chat access: students, the uploader, and admins.
func canChat(viewer domain.User, doc domain.Document) bool {
	if viewer.Role == domain.RoleStudent || viewer.Role == domain.RoleAdmin {
		return true
	}
	return doc.UploadedBy == viewer.ID
}
