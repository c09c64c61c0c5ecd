package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"studypal/pkg/ai"
	"studypal/pkg/domain"
	"studypal/pkg/queue"
	"studypal/pkg/store"
)

// fakeGenerator records prompts and replays scripted responses.
type fakeGenerator struct {
	mu        sync.Mutex
	calls     int
	systems   []string
	prompts   []string
	responses []string
	err       error
}

func (g *fakeGenerator) GenerateText(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.systems = append(g.systems, systemPrompt)
	g.prompts = append(g.prompts, userPrompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) > 0 {
		resp := g.responses[0]
		if len(g.responses) > 1 {
			g.responses = g.responses[1:]
		}
		return resp, nil
	}
	return fmt.Sprintf("reply %d", g.calls), nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// memObjects is an in-memory ObjectStore.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// memQueue records enqueued document IDs without a broker.
type memQueue struct {
	mu   sync.Mutex
	jobs []queue.JobStatus
}

func (q *memQueue) Enqueue(_ context.Context, documentID string) (queue.JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job := queue.JobStatus{
		ID:         fmt.Sprintf("job-%d", len(q.jobs)+1),
		DocumentID: documentID,
		Status:     queue.StatusQueued,
		CreatedAt:  time.Now().UTC(),
	}
	q.jobs = append(q.jobs, job)
	return job, nil
}

func (q *memQueue) GetJob(_ context.Context, jobID string) (queue.JobStatus, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.jobs {
		if job.ID == jobID {
			return job, true, nil
		}
	}
	return queue.JobStatus{}, false, nil
}

type fixture struct {
	app       *App
	store     *store.MemoryStore
	objects   *memObjects
	queue     *memQueue
	generator *fakeGenerator
}

func newFixture(gen *fakeGenerator) *fixture {
	if gen == nil {
		gen = &fakeGenerator{}
	}
	memStore := store.NewMemoryStore()
	objects := newMemObjects()
	jobs := &memQueue{}
	application, err := New(Config{
		Store:     memStore,
		Objects:   objects,
		Queue:     jobs,
		Responder: ai.NewResponder(gen, "test-model"),
		AITimeout: 5 * time.Second,
	})
	if err != nil {
		panic(err)
	}
	return &fixture{app: application, store: memStore, objects: objects, queue: jobs, generator: gen}
}

func (f *fixture) addUser(role domain.UserRole) domain.User {
	user := domain.User{
		ID:        fmt.Sprintf("user-%s-%d", role, time.Now().UnixNano()),
		Email:     fmt.Sprintf("%d@example.com", time.Now().UnixNano()),
		Role:      role,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.store.SaveUser(user); err != nil {
		panic(err)
	}
	return user
}

func (f *fixture) addProcessedDocument(uploaderID, text string) domain.Document {
	now := time.Now().UTC()
	doc := domain.Document{
		ID:               fmt.Sprintf("doc-%d", time.Now().UnixNano()),
		UploadedBy:       uploaderID,
		OriginalFilename: "water-cycle.pdf",
		Status:           domain.StatusProcessed,
		RawText:          text,
		ProcessedText:    text,
		CreatedAt:        now,
		ProcessedAt:      &now,
	}
	if err := f.store.SaveDocument(doc); err != nil {
		panic(err)
	}
	return doc
}
