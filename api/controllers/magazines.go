package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adyeetya/blogs-backend/api/responses"
	"github.com/adyeetya/blogs-backend/api/validators"
	"github.com/adyeetya/blogs-backend/internal/magazines"
	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
	"github.com/adyeetya/blogs-backend/pkg/logger"
)

const pdfFormField = "pdf"

// UploadOptions bounds PDF uploads.
type UploadOptions struct {
	ScratchDir string
	MaxBytes   int64
}

// MagazineCreate registers a new magazine in draft.
func MagazineCreate(svc magazines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "magazine service unavailable"))
			return
		}

		var payload magazines.CreateMagazineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		mag, err := svc.Create(r.Context(), payload.ToInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, mag)
	}
}

// MagazineList returns one page of magazines, newest first.
func MagazineList(svc magazines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "magazine service unavailable"))
			return
		}

		page, err := svc.List(r.Context(), validators.ParsePagination(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// MagazineLatest returns the three newest magazines.
func MagazineLatest(svc magazines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "magazine service unavailable"))
			return
		}

		items, err := svc.Latest(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// MagazineGet returns one magazine by slug.
func MagazineGet(svc magazines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "magazine service unavailable"))
			return
		}

		mag, err := svc.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mag)
	}
}

// MagazineUploadPDF accepts the magazine PDF and starts ingestion. It answers
// 202 as soon as the magazine is processing; clients poll the magazine for
// the outcome.
func MagazineUploadPDF(svc magazines.Service, opts UploadOptions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "magazine service unavailable"))
			return
		}

		slug := chi.URLParam(r, "slug")
		if _, err := svc.GetBySlug(r.Context(), slug); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		upload, err := validators.SavePDFUpload(w, r, pdfFormField, opts.ScratchDir, opts.MaxBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(logg.WithMagazine(ctx, slug), map[string]any{
				"file_name":  upload.FileName,
				"size_bytes": upload.SizeBytes,
			})
			logg.Info(ctx, "magazine pdf received")
		}

		mag, err := svc.TriggerIngestion(ctx, slug, upload.Path)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, mag)
	}
}
