package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/victorteokw/docmap/core/fault"
	"github.com/victorteokw/docmap/core/schema"
)

func (h *Handler) handleCreate(ent *schema.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := callerFrom(r.Context())
		body, err := decodeBody(r)
		if err != nil {
			h.writeFaults(w, caller, fault.List{fault.New(fault.KindTypeMismatch, "", "invalid JSON body")})
			return
		}
		doc, err := h.engine.Create(r.Context(), ent.Name, body, caller)
		if err != nil {
			h.writeError(w, caller, err)
			return
		}
		writeJSON(w, http.StatusCreated, doc)
	}
}

func (h *Handler) handleList(ent *schema.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := callerFrom(r.Context())
		docs, err := h.engine.List(r.Context(), ent.Name, caller)
		if err != nil {
			h.writeError(w, caller, err)
			return
		}
		if docs == nil {
			docs = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

func (h *Handler) handleGet(ent *schema.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := callerFrom(r.Context())
		doc, err := h.engine.Get(r.Context(), ent.Name, chi.URLParam(r, "id"), caller)
		if err != nil {
			h.writeError(w, caller, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) handleRelated(ent *schema.Entity, field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := callerFrom(r.Context())
		docs, err := h.engine.Related(r.Context(), ent.Name, chi.URLParam(r, "id"), field, caller)
		if err != nil {
			h.writeError(w, caller, err)
			return
		}
		if docs == nil {
			docs = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

func (h *Handler) handleUpdate(ent *schema.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := callerFrom(r.Context())
		body, err := decodeBody(r)
		if err != nil {
			h.writeFaults(w, caller, fault.List{fault.New(fault.KindTypeMismatch, "", "invalid JSON body")})
			return
		}
		doc, err := h.engine.Update(r.Context(), ent.Name, chi.URLParam(r, "id"), body, caller)
		if err != nil {
			h.writeError(w, caller, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) handleDelete(ent *schema.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := callerFrom(r.Context())
		if err := h.engine.Delete(r.Context(), ent.Name, chi.URLParam(r, "id"), caller); err != nil {
			h.writeError(w, caller, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleSession signs a caller in against the entity's identity and secret
// fields and returns a bearer token plus the matched record.
func (h *Handler) handleSession(ent *schema.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(r)
		if err != nil {
			h.writeFaults(w, nil, fault.List{fault.New(fault.KindTypeMismatch, "", "invalid JSON body")})
			return
		}
		ident, doc, err := h.engine.Authenticate(r.Context(), ent.Name, body)
		if err != nil {
			if h.metrics != nil {
				h.metrics.AuthFailures.WithLabelValues("bad_credentials").Inc()
			}
			h.writeError(w, nil, err)
			return
		}
		token, expires, err := h.tokens.Issue(ident)
		if err != nil {
			h.writeError(w, nil, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":      token,
			"expires_at": expires.UTC(),
			ent.Name:     doc,
		})
	}
}

// handleUpload stores a binary payload and returns its URL. The URL is the
// only thing that ever lands in a document.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	if caller == nil {
		h.writeFaults(w, nil, fault.List{fault.New(fault.KindAuthDenied, "", "sign in to upload")})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeFaults(w, caller, fault.List{fault.New(fault.KindTypeMismatch, "file", "missing multipart file")})
		return
	}
	defer file.Close()

	slot := uuid.New().String() + safeExt(header.Filename)
	url, err := h.uploads.Put(r.Context(), slot, file)
	if err != nil {
		h.writeError(w, caller, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"url": url})
}

// safeExt keeps a short alphanumeric file extension, drops anything else.
func safeExt(name string) string {
	for i := len(name) - 1; i >= 0 && len(name)-i <= 8; i-- {
		if name[i] == '.' {
			ext := name[i:]
			for _, r := range ext[1:] {
				if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
					return ""
				}
			}
			return ext
		}
	}
	return ""
}
