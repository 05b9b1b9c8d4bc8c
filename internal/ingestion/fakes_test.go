package ingestion

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adyeetya/blogs-backend/internal/ingestion/transcode"
	"github.com/adyeetya/blogs-backend/pkg/db/models"
	"github.com/adyeetya/blogs-backend/pkg/enums"
	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
	"github.com/adyeetya/blogs-backend/pkg/storage"
)

type fakeRecords struct {
	mu          sync.Mutex
	mags        map[uuid.UUID]*models.Magazine
	transitions []enums.MagazineStatus
	readyCalls  int
}

func newFakeRecords(mags ...*models.Magazine) *fakeRecords {
	r := &fakeRecords{mags: map[uuid.UUID]*models.Magazine{}}
	for _, m := range mags {
		cp := *m
		r.mags[m.ID] = &cp
	}
	return r
}

func (r *fakeRecords) get(id uuid.UUID) models.Magazine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.mags[id]
}

func (r *fakeRecords) MarkProcessing(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.mags[id]
	m.Status = enums.MagazineStatusProcessing
	m.ProcessingStartedAt = &at
	m.LastError = nil
	r.transitions = append(r.transitions, m.Status)
	return nil
}

func (r *fakeRecords) SaveSourceDocument(_ context.Context, id uuid.UUID, doc models.SourceDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mags[id].SourceDocument = &doc
	return nil
}

func (r *fakeRecords) MarkReady(_ context.Context, id uuid.UUID, pages models.Pages, cover string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readyCalls++
	m := r.mags[id]
	if m.SourceDocument == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no source document")
	}
	m.Status = enums.MagazineStatusReady
	m.Pages = append(models.Pages(nil), pages...)
	m.PageCount = len(pages)
	m.CoverImageURL = &cover
	m.ProcessingStartedAt = nil
	r.transitions = append(r.transitions, m.Status)
	return nil
}

func (r *fakeRecords) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.mags[id]
	m.Status = enums.MagazineStatusFailed
	m.LastError = &lastError
	m.ProcessingStartedAt = nil
	r.transitions = append(r.transitions, m.Status)
	return nil
}

type fakeStore struct {
	mu     sync.Mutex
	puts   []string
	objs   map[string][]byte
	failOn func(key string) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objs: map[string][]byte{}}
}

func (s *fakeStore) Put(ctx context.Context, localPath, key string) (storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return storage.Object{}, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "put")
	}
	if s.failOn != nil {
		if err := s.failOn(key); err != nil {
			return storage.Object{}, err
		}
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return storage.Object{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, key)
	s.objs[key] = data
	return storage.Object{Key: key, URL: s.URL(key), SizeBytes: int64(len(data))}, nil
}

func (s *fakeStore) URL(key string) string     { return "https://cdn.test/" + key }
func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }

func (s *fakeStore) pageKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for _, k := range s.puts {
		if filepath.Base(filepath.Dir(k)) == "pages" {
			keys = append(keys, k)
		}
	}
	return keys
}

// fakeRenderer writes n raw pages named the way pdftoppm would.
type fakeRenderer struct {
	pages   int
	err     error
	gate    chan struct{}
	started chan struct{}
	done    func()
}

func (r *fakeRenderer) Render(ctx context.Context, pdfPath, scratchDir string) ([]string, error) {
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.gate != nil {
		<-r.gate
	}
	if r.err != nil {
		return nil, r.err
	}
	out := make([]string, 0, r.pages)
	for i := 1; i <= r.pages; i++ {
		p := filepath.Join(scratchDir, fmt.Sprintf("page-%d.jpg", i))
		if err := os.WriteFile(p, []byte(fmt.Sprintf("raw-%d", i)), 0o644); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if r.done != nil {
		r.done()
	}
	return out, nil
}

// fakeTranscoder copies the raw page after a random delay so workers finish
// out of order.
type fakeTranscoder struct {
	failOn  map[string]error
	panicOn string
}

func (t *fakeTranscoder) Format() enums.PageFormat { return enums.PageFormatWebP }

func (t *fakeTranscoder) Transcode(ctx context.Context, rawPath, outPath string) (transcode.Result, error) {
	time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	name := filepath.Base(rawPath)
	if name == t.panicOn {
		panic("decoder exploded")
	}
	if err, ok := t.failOn[name]; ok {
		return transcode.Result{}, err
	}
	in, err := os.Open(rawPath)
	if err != nil {
		return transcode.Result{}, err
	}
	defer in.Close()
	out, err := os.Create(outPath)
	if err != nil {
		return transcode.Result{}, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return transcode.Result{}, err
	}
	return transcode.Result{Path: outPath, Width: 1600, Height: 2133, SizeBytes: n, Format: enums.PageFormatWebP}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
