// Package render rasterizes PDF documents into one image per page with
// poppler's pdftoppm.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
)

const (
	DefaultBinary  = "pdftoppm"
	DefaultDPI     = 180
	DefaultTimeout = 5 * time.Minute

	outputRoot = "page"
	maxStderr  = 2048
)

// Options configures the rasterizer.
type Options struct {
	Binary  string
	DPI     int
	Timeout time.Duration
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Renderer turns a PDF into raster page files in page order.
type Renderer struct {
	opts       Options
	run        runFunc
	countPages func(path string) (int, error)
}

func New(opts Options) *Renderer {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.DPI <= 0 {
		opts.DPI = DefaultDPI
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Renderer{
		opts:       opts,
		run:        runCommand,
		countPages: api.PageCountFile,
	}
}

// Render rasterizes pdfPath into scratchDir and returns the produced files
// sorted by page number.
func (r *Renderer) Render(ctx context.Context, pdfPath, scratchDir string) ([]string, error) {
	// pdftoppm repairs documents pdfcpu cannot parse, so the count only
	// cross-checks the output when it could be read.
	expected, countErr := r.safeCount(pdfPath)

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	args := []string{"-jpeg", "-r", strconv.Itoa(r.opts.DPI), pdfPath, filepath.Join(scratchDir, outputRoot)}
	if out, err := r.run(runCtx, r.opts.Binary, args...); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeRenderFailed, runCtx.Err(), fmt.Sprintf("%s timed out after %s", r.opts.Binary, r.opts.Timeout))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeRenderFailed, err, fmt.Sprintf("%s failed: %s", r.opts.Binary, truncate(out)))
	}

	pages, err := listPages(scratchDir)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRenderFailed, err, "list rendered pages")
	}
	if len(pages) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeRenderFailed, "rasterizer produced no pages")
	}
	if countErr == nil && expected > 0 && len(pages) != expected {
		return nil, pkgerrors.New(pkgerrors.CodeRenderFailed, fmt.Sprintf("rasterizer produced %d pages, document has %d", len(pages), expected))
	}
	return pages, nil
}

// safeCount reads the page count with pdfcpu. Parser panics on damaged
// cross-reference tables come back as errors.
func (r *Renderer) safeCount(pdfPath string) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, fmt.Errorf("count pages: %v", rec)
		}
	}()
	return r.countPages(pdfPath)
}

// listPages returns the rasterizer outputs in scratchDir in numeric page order.
func listPages(scratchDir string) ([]string, error) {
	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, outputRoot) {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".jpg", ".jpeg", ".png", ".ppm":
			names = append(names, name)
		}
	}
	sort.SliceStable(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(scratchDir, name)
	}
	return paths, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

func truncate(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > maxStderr {
		s = s[:maxStderr] + "..."
	}
	if s == "" {
		return "no output"
	}
	return s
}
