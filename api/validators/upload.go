package validators

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/adyeetya/blogs-backend/internal/ingestion"
	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
)

const (
	pdfMimeType = "application/pdf"
	// multipartOverhead leaves room for boundaries and other form fields.
	multipartOverhead = 1 << 20
)

// Upload is a file received from a multipart form and spooled to disk.
type Upload struct {
	Path      string
	FileName  string
	SizeBytes int64
}

// SavePDFUpload streams the named multipart field into dir as
// upload-*.pdf. The part must declare a PDF content type or carry a .pdf
// extension, and its bytes must sniff as a PDF. On error nothing is left on
// disk.
func SavePDFUpload(w http.ResponseWriter, r *http.Request, field, dir string, maxBytes int64) (*Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request must be multipart/form-data")
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "pdf file is required").WithDetails(map[string]string{field: "is required"})
		}
		if err != nil {
			return nil, uploadReadError(err, maxBytes)
		}
		if part.FormName() != field || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		defer part.Close()

		if !declaresPDF(part.FileName(), part.Header.Get("Content-Type")) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "uploaded file must be a PDF").WithDetails(map[string]string{field: "must be a PDF"})
		}
		return spoolPDF(part, part.FileName(), dir, maxBytes)
	}
}

func spoolPDF(src io.Reader, name, dir string, maxBytes int64) (*Upload, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	out, err := os.CreateTemp(dir, ingestion.UploadPrefix+"*.pdf")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create upload file")
	}
	path := out.Name()
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(path)
		}
	}()

	n, err := io.Copy(out, io.LimitReader(src, maxBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, uploadReadError(err, maxBytes)
	}
	if n > maxBytes {
		return nil, tooLarge(maxBytes)
	}
	if n == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "uploaded file is empty")
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "inspect upload")
	}
	if !mt.Is(pdfMimeType) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "uploaded file is not a PDF").WithDetails(map[string]string{"detected": mt.String()})
	}

	keep = true
	return &Upload{Path: path, FileName: filepath.Base(name), SizeBytes: n}, nil
}

func declaresPDF(fileName, contentType string) bool {
	if strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.EqualFold(mediaType, pdfMimeType)
}

func uploadReadError(err error, maxBytes int64) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return tooLarge(maxBytes)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "could not read upload")
}

func tooLarge(maxBytes int64) error {
	limit := fmt.Sprintf("%d MB", maxBytes>>20)
	if maxBytes < 1<<20 {
		limit = fmt.Sprintf("%d byte", maxBytes)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "file exceeds the "+limit+" upload limit")
}
