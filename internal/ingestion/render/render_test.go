package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
)

// fakeRasterizer writes n page files the way pdftoppm names them when it
// does not pad (page-1.jpg ... page-n.jpg).
func fakeRasterizer(t *testing.T, n int) runFunc {
	t.Helper()
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		root := args[len(args)-1]
		for i := 1; i <= n; i++ {
			path := fmt.Sprintf("%s-%d.jpg", root, i)
			if err := os.WriteFile(path, []byte{byte(i)}, 0o644); err != nil {
				t.Fatalf("write fake page: %v", err)
			}
		}
		return nil, nil
	}
}

func newTestRenderer(run runFunc, pages int) *Renderer {
	r := New(Options{Timeout: time.Second})
	r.run = run
	r.countPages = func(string) (int, error) { return pages, nil }
	return r
}

func TestRenderOrdersPagesNumerically(t *testing.T) {
	scratch := t.TempDir()
	r := newTestRenderer(fakeRasterizer(t, 12), 12)

	pages, err := r.Render(context.Background(), "in.pdf", scratch)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(pages) != 12 {
		t.Fatalf("expected 12 pages, got %d", len(pages))
	}
	for i, p := range pages {
		want := fmt.Sprintf("page-%d.jpg", i+1)
		if filepath.Base(p) != want {
			t.Fatalf("position %d: expected %s got %s", i, want, filepath.Base(p))
		}
	}
}

func TestRenderPassesDPIAndOutputRoot(t *testing.T) {
	scratch := t.TempDir()
	var gotName string
	var gotArgs []string
	r := newTestRenderer(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return fakeRasterizer(t, 1)(ctx, name, args...)
	}, 1)
	r.opts.DPI = 144

	if _, err := r.Render(context.Background(), "/tmp/in.pdf", scratch); err != nil {
		t.Fatalf("render: %v", err)
	}
	want := []string{"-jpeg", "-r", "144", "/tmp/in.pdf", filepath.Join(scratch, "page")}
	if gotName != DefaultBinary || strings.Join(gotArgs, " ") != strings.Join(want, " ") {
		t.Fatalf("unexpected invocation %s %v", gotName, gotArgs)
	}
}

func TestRenderFailures(t *testing.T) {
	cases := map[string]*Renderer{
		"non-zero exit": newTestRenderer(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("Syntax Error: Couldn't find trailer dictionary"), errors.New("exit status 1")
		}, 3),
		"no output": newTestRenderer(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, nil
		}, 3),
		"count mismatch": newTestRenderer(fakeRasterizer(t, 2), 3),
		"zero page document": newTestRenderer(fakeRasterizer(t, 0), 0),
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Render(context.Background(), "in.pdf", t.TempDir())
			if !pkgerrors.IsCode(err, pkgerrors.CodeRenderFailed) {
				t.Fatalf("expected render failed, got %v", err)
			}
		})
	}
}

func TestRenderIgnoresUnreadablePageCount(t *testing.T) {
	cases := map[string]func(string) (int, error){
		"count error": func(string) (int, error) { return 0, errors.New("pdfcpu: corrupt xref") },
		"count panic": func(string) (int, error) { panic("runtime error: slice bounds out of range [-1:]") },
	}
	for name, count := range cases {
		t.Run(name, func(t *testing.T) {
			r := newTestRenderer(fakeRasterizer(t, 2), 0)
			r.countPages = count

			pages, err := r.Render(context.Background(), "in.pdf", t.TempDir())
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if len(pages) != 2 {
				t.Fatalf("expected 2 pages, got %d", len(pages))
			}
		})
	}
}

// damagedPDF is a one page document whose startxref points past the end of
// the file and which has no xref table at all.
const damagedPDF = "%PDF-1.4\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
	"3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n" +
	"trailer\n<< /Root 1 0 R /Size 4 >>\nstartxref\n99999\n%%EOF\n"

func TestRenderDamagedPDFStillRasterizes(t *testing.T) {
	src := filepath.Join(t.TempDir(), "damaged.pdf")
	if err := os.WriteFile(src, []byte(damagedPDF), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}

	// real pdfcpu counter, fake pdftoppm
	r := New(Options{Timeout: time.Second})
	r.run = fakeRasterizer(t, 1)

	pages, err := r.Render(context.Background(), src, t.TempDir())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
}

func TestRenderTimeoutIsRenderFailed(t *testing.T) {
	r := newTestRenderer(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, errors.New("signal: killed")
	}, 1)
	r.opts.Timeout = 10 * time.Millisecond

	_, err := r.Render(context.Background(), "in.pdf", t.TempDir())
	if !pkgerrors.IsCode(err, pkgerrors.CodeRenderFailed) {
		t.Fatalf("expected render failed, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline cause, got %v", err)
	}
}

func TestListPagesIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"page-02.jpg", "page-10.jpg", "page-01.jpg", "source.pdf", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "page-dir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	pages, err := listPages(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := make([]string, len(pages))
	for i, p := range pages {
		got[i] = filepath.Base(p)
	}
	if strings.Join(got, ",") != "page-01.jpg,page-02.jpg,page-10.jpg" {
		t.Fatalf("unexpected listing %v", got)
	}
}
