package handlers

import (
	"net/http"

	"github.com/medadhere/backend/internal/models"
	"github.com/medadhere/backend/internal/services"
)

// RecordHandler exposes local record mutations.
type RecordHandler struct {
	svc *services.RecordService
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(svc *services.RecordService) *RecordHandler {
	return &RecordHandler{svc: svc}
}

func kindOf(w http.ResponseWriter, r *http.Request) (models.Kind, bool) {
	kind, err := models.ParseKind(r.PathValue("kind"))
	if err != nil {
		badRequest(w, err.Error())
		return "", false
	}
	return kind, true
}

// List handles GET /api/records/{kind}.
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindOf(w, r)
	if !ok {
		return
	}
	recs, err := h.svc.List(kind, r.URL.Query().Get("includeDeleted") == "true")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": recs})
}

// Get handles GET /api/records/{kind}/{id}.
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindOf(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Get(kind, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Create handles POST /api/records/{kind}.
func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindOf(w, r)
	if !ok {
		return
	}
	var rec models.Record
	if err := decode(r, &rec); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	out, err := h.svc.Create(kind, rec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// Update handles PUT /api/records/{kind}/{id}.
func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindOf(w, r)
	if !ok {
		return
	}
	var rec models.Record
	if err := decode(r, &rec); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	out, err := h.svc.Update(kind, r.PathValue("id"), rec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Delete handles DELETE /api/records/{kind}/{id}.
func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindOf(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Delete(kind, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
