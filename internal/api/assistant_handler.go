package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"

	httperrors "github.com/pewcal/pewcal/internal/http/errors"
)

const maxUploadSize = 20 << 20

func (h *Handler) assistantReady(w http.ResponseWriter, r *http.Request) bool {
	if h.assistant == nil {
		httperrors.Status(w, r, http.StatusServiceUnavailable, "The assistant is not configured")
		return false
	}
	return true
}

// CreateAssistant creates a general purpose assistant.
func (h *Handler) CreateAssistant(w http.ResponseWriter, r *http.Request) {
	if !h.assistantReady(w, r) {
		return
	}
	var body struct {
		Name         string `json:"name"`
		Instructions string `json:"instructions"`
	}
	if err := decodeJSON(w, r, &body); err != nil && !errors.Is(err, io.EOF) {
		httperrors.BadRequest(w, r, err, "Invalid request body")
		return
	}
	a, err := h.assistant.CreateGeneric(r.Context(), body.Name, body.Instructions)
	if err != nil {
		httperrors.InternalError(w, r, err, "Failed to create assistant")
		return
	}
	httperrors.JSON(w, http.StatusOK, map[string]any{"assistantId": a.ID, "assistant": a})
}

// ListFiles lists files available to assistants.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	if !h.assistantReady(w, r) {
		return
	}
	files, err := h.assistant.ListFiles(r.Context())
	if err != nil {
		httperrors.InternalError(w, r, err, "Failed to list files")
		return
	}
	if files == nil {
		files = []openai.File{}
	}
	httperrors.JSON(w, http.StatusOK, map[string]any{"files": files})
}

// UploadFile accepts a multipart "file" field of up to 20MB.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if !h.assistantReady(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httperrors.Status(w, r, http.StatusRequestEntityTooLarge, "File is too large (max 20MB)")
			return
		}
		httperrors.BadRequest(w, r, err, "Invalid upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httperrors.BadRequest(w, r, err, "No file provided")
		return
	}
	defer file.Close()
	if header.Size > maxUploadSize {
		httperrors.Status(w, r, http.StatusRequestEntityTooLarge, "File is too large (max 20MB)")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		httperrors.BadRequest(w, r, err, "Failed to read file")
		return
	}
	uploaded, err := h.assistant.UploadFile(r.Context(), header.Filename, data)
	if err != nil {
		httperrors.InternalError(w, r, err, "Failed to upload file")
		return
	}
	httperrors.JSON(w, http.StatusOK, map[string]any{"file": uploaded})
}
