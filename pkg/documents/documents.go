package documents

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/middleware"
	"lms-backend/pkg/models"
)

// multipart overhead allowed on top of the file itself
const formSlack = 1 << 20

type Handler struct {
	svc *Service
	log *logger.Logger
}

func NewHandler(svc *Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// UploadDoc takes a multipart form with "file" and an optional
// "module_id". The category comes from the path.
func (h *Handler) UploadDoc(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	category := models.FileCategory(mux.Vars(r)["file_type"])

	r.Body = http.MaxBytesReader(w, r.Body, h.svc.maxSize+formSlack)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		apierr.Write(w, h.log, apierr.BadRequest("Error parsing upload form"))
		return
	}
	defer r.MultipartForm.RemoveAll()
	file, header, err := r.FormFile("file")
	if err != nil {
		apierr.Write(w, h.log, apierr.BadRequest("No file provided"))
		return
	}
	defer file.Close()

	var moduleID *uint
	if raw := r.FormValue("module_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			apierr.Write(w, h.log, apierr.Validation("module_id must be a positive integer"))
			return
		}
		id := uint(v)
		moduleID = &id
	}

	res, err := h.svc.Upload(r.Context(), user, Upload{
		Category:    category,
		ModuleID:    moduleID,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusCreated, res)
}

func (h *Handler) DownloadDoc(w http.ResponseWriter, r *http.Request) {
	doc, body, err := h.svc.Open(r.Context(), mux.Vars(r)["file_id"])
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	defer body.Close()
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Disposition", "inline; filename=\""+doc.FileName+"\"")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	if _, err := io.Copy(w, body); err != nil {
		h.log.Warn("stream file", "file_id", doc.FileID, "error", err)
	}
}

func (h *Handler) ModuleDocs(w http.ResponseWriter, r *http.Request) {
	moduleID, err := middleware.PathID(r, "module_id")
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	docs, err := h.svc.ListByModule(r.Context(), moduleID)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, docs)
}

func (h *Handler) DeleteDoc(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	if err := h.svc.Delete(r.Context(), user, mux.Vars(r)["file_id"]); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, apierr.OK("File deleted successfully"))
}
