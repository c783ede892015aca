package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"chatpdf/internal/ai"
	"chatpdf/internal/model"
	"chatpdf/internal/pkg/logger"
	"chatpdf/internal/pkg/pdfextract"
	"chatpdf/internal/platform/database/dbtest"
	"chatpdf/internal/rag"
	"chatpdf/internal/repository"
)

type repos struct {
	documents *repository.DocumentRepository
	chunks    *repository.ChunkRepository
	messages  *repository.ChatMessageRepository
}

func newRepos(t *testing.T) repos {
	t.Helper()
	db := dbtest.Open(t)
	return repos{
		documents: repository.NewDocumentRepository(db),
		chunks:    repository.NewChunkRepository(db),
		messages:  repository.NewChatMessageRepository(db),
	}
}

func createDocument(t *testing.T, r repos, status model.DocumentStatus) *model.Document {
	t.Helper()
	id := uuid.NewString()
	doc := &model.Document{ID: id, Filename: "paper.pdf", StorageKey: model.StorageKeyFor(id), FileSize: 1024, Status: status}
	if err := r.documents.Create(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	return doc
}

type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleteErr error
	deleted   []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (f *fakeBlobs) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (f *fakeBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobs) PresignedGetURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/%s?expires=%d", key, int(expiry.Seconds())), nil
}

type fakeExtractor struct {
	pages []pdfextract.Page
	err   error
}

func (f fakeExtractor) ExtractPages([]byte) ([]pdfextract.Page, error) {
	return f.pages, f.err
}

// fakeEmbedder maps every text onto a two-dimensional unit-ish vector.
type fakeEmbedder struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i % 3)}
	}
	return out, nil
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// memorySteps journals completed steps like the redis runner does.
type memorySteps struct {
	mu     sync.Mutex
	done   map[string]bool
	ran    []string
	resets int
}

func newMemorySteps() *memorySteps {
	return &memorySteps{done: map[string]bool{}}
}

func (m *memorySteps) Run(ctx context.Context, jobID, step string, fn func(context.Context) error) error {
	m.mu.Lock()
	if m.done[jobID+"/"+step] {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	if err := fn(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done[jobID+"/"+step] = true
	m.ran = append(m.ran, step)
	return nil
}

func (m *memorySteps) Reset(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	for key := range m.done {
		if strings.HasPrefix(key, jobID+"/") {
			delete(m.done, key)
		}
	}
	return nil
}

// fakeGenerator replies with fixed fragments. A failAt >= 0 makes the stream
// fail before that fragment.
type fakeGenerator struct {
	fragments []string
	failAt    int
	err       error
	last      []ai.ChatMessage
}

func newFakeGenerator(fragments ...string) *fakeGenerator {
	return &fakeGenerator{fragments: fragments, failAt: -1}
}

func (g *fakeGenerator) Generate(_ context.Context, messages []ai.ChatMessage) (string, error) {
	g.last = messages
	if g.err != nil {
		return "", g.err
	}
	return strings.Join(g.fragments, ""), nil
}

func (g *fakeGenerator) Stream(ctx context.Context, messages []ai.ChatMessage) (<-chan ai.StreamEvent, error) {
	g.last = messages
	if g.err != nil && g.failAt < 0 {
		return nil, g.err
	}
	events := make(chan ai.StreamEvent)
	go func() {
		defer close(events)
		send := func(ev ai.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for i, f := range g.fragments {
			if i == g.failAt {
				err := fmt.Errorf("%w: connection reset", ai.ErrProvider)
				send(ai.StreamEvent{Type: ai.StreamError, Content: err.Error(), Err: err})
				return
			}
			if !send(ai.StreamEvent{Type: ai.StreamToken, Content: f}) {
				return
			}
		}
		send(ai.StreamEvent{Type: ai.StreamDone})
	}()
	return events, nil
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []model.IngestJob
	err  error
}

func (p *fakePublisher) PublishIngest(_ context.Context, job model.IngestJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

type fakeHistoryCache struct {
	mu      sync.Mutex
	entries map[string][]model.ChatMessage
	dirty   map[string]bool
	hits    int
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{entries: map[string][]model.ChatMessage{}, dirty: map[string]bool{}}
}

func (c *fakeHistoryCache) Load(_ context.Context, id string) ([]model.ChatMessage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirty[id] {
		return nil, false, nil
	}
	messages, ok := c.entries[id]
	if ok {
		c.hits++
	}
	return messages, ok, nil
}

func (c *fakeHistoryCache) Store(_ context.Context, id string, messages []model.ChatMessage) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirty[id] {
		return false, nil
	}
	c.entries[id] = messages
	return true, nil
}

func (c *fakeHistoryCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[id] = true
	delete(c.entries, id)
	return nil
}

func (c *fakeHistoryCache) Purge(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	delete(c.dirty, id)
	return nil
}

func (c *fakeHistoryCache) isDirty(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty[id]
}

// expire drops the dirty markers as their TTL would.
func (c *fakeHistoryCache) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = map[string]bool{}
}

func mustSplitter(t *testing.T) *rag.Splitter {
	t.Helper()
	s, err := rag.NewSplitter(60, 10)
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}
	return s
}

var errBoom = errors.New("boom")

var testLogger = logger.Discard()
