package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"drivestore/internal/config"
	models "drivestore/internal/domain/models/namespace"
	nsSvc "drivestore/internal/domain/services/namespace"
	"drivestore/internal/httputil"
)

// multipartMemory is the part of an upload kept in memory before spilling to disk
const multipartMemory = 32 << 20

// multipartOverhead allows for form fields and boundaries around the file
const multipartOverhead = 1 << 20

// EntryHandler handles file and folder HTTP requests
type EntryHandler struct {
	errorResponder
	tree          nsSvc.TreeService
	maxUploadSize int64
}

// NewEntryHandler creates a new entry handler
func NewEntryHandler(tree nsSvc.TreeService, cfg *config.Config, logger *slog.Logger) *EntryHandler {
	return &EntryHandler{
		errorResponder: errorResponder{debug: cfg.Debug, logger: logger},
		tree:           tree,
		maxUploadSize:  cfg.MaxUploadSize,
	}
}

// Register adds the entry routes to mux
func (h *EntryHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/entries", h.ListChildren)
	mux.HandleFunc("GET /api/entries/{id}", h.GetEntry)
	mux.HandleFunc("PATCH /api/entries/{id}", h.UpdateEntry)
	mux.HandleFunc("DELETE /api/entries/{id}", h.DeleteEntry)
	mux.HandleFunc("POST /api/entries/{id}/star", h.ToggleStar)
	mux.HandleFunc("PUT /api/entries/{id}/star", h.SetStarred)
	mux.HandleFunc("POST /api/entries/{id}/trash", h.TrashEntry)
	mux.HandleFunc("POST /api/entries/{id}/restore", h.RestoreEntry)
	mux.HandleFunc("GET /api/entries/{id}/content", h.GetContent)
	mux.HandleFunc("POST /api/folders", h.CreateFolder)
	mux.HandleFunc("POST /api/files", h.CreateFile)
	mux.HandleFunc("GET /api/trash", h.ListTrash)
	mux.HandleFunc("GET /api/search", h.Search)
	mux.HandleFunc("GET /api/usage", h.GetUsage)
}

// ListChildren lists a folder's children, or the root level without parent_id
// GET /api/entries?parent_id=&q=&starred=
func (h *EntryHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	starred, err := httputil.QueryBool(r, "starred")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	filter := models.ListFilter{
		NameContains: r.URL.Query().Get("q"),
		StarredOnly:  starred,
	}

	entries, err := h.tree.ListChildren(r.Context(), ownerID, httputil.QueryOptional(r, "parent_id"), filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, entries)
}

// GetEntry retrieves a single entry
// GET /api/entries/{id}
func (h *EntryHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	entry, err := h.tree.GetEntry(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, entry)
}

// CreateFolder creates a new folder
// POST /api/folders
func (h *EntryHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	var req nsSvc.CreateFolderRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	req.OwnerID = ownerID

	folder, err := h.tree.CreateFolder(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, folder)
}

// CreateFile uploads a file from a multipart form with fields file, name
// (defaults to the uploaded filename) and parent_id (omitted for root)
// POST /api/files
func (h *EntryHandler) CreateFile(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.RespondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds the %d byte limit", h.maxUploadSize))
			return
		}
		h.badRequest(w, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.badRequest(w, "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.badRequest(w, "failed to read uploaded file")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	req := &nsSvc.CreateFileRequest{
		OwnerID:  ownerID,
		Name:     name,
		Content:  content,
		MimeType: mimeHint(header.Header.Get("Content-Type")),
	}
	if parentID := r.FormValue("parent_id"); parentID != "" {
		req.ParentID = &parentID
	}

	entry, err := h.tree.CreateFile(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, entry)
}

// mimeHint drops the generic type browsers send when they don't know better
func mimeHint(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "application/octet-stream" {
		return ""
	}
	return contentType
}

// updateEntryBody is the PATCH payload. parent_id null or "" moves to root.
type updateEntryBody struct {
	Name     *string                 `json:"name"`
	ParentID httputil.OptionalString `json:"parent_id"`
}

// UpdateEntry renames and/or moves an entry
// PATCH /api/entries/{id}
func (h *EntryHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	var body updateEntryBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	req := &nsSvc.UpdateEntryRequest{Name: body.Name}
	if body.ParentID.Present {
		req.ParentID = nsSvc.OptionalParent{Present: true, Value: body.ParentID.Target()}
	}

	entry, err := h.tree.UpdateEntry(r.Context(), ownerID, r.PathValue("id"), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, entry)
}

// ToggleStar flips the starred flag
// POST /api/entries/{id}/star
func (h *EntryHandler) ToggleStar(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	entry, err := h.tree.ToggleStar(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, entry)
}

// SetStarred sets the starred flag; safe to retry
// PUT /api/entries/{id}/star
func (h *EntryHandler) SetStarred(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	var body struct {
		Starred *bool `json:"starred"`
	}
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if body.Starred == nil {
		h.badRequest(w, "starred is required")
		return
	}

	entry, err := h.tree.SetStarred(r.Context(), ownerID, r.PathValue("id"), *body.Starred)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, entry)
}

// TrashEntry moves an entry and its subtree to the trash
// POST /api/entries/{id}/trash
func (h *EntryHandler) TrashEntry(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	entry, err := h.tree.Trash(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, entry)
}

// RestoreEntry brings a trashed entry back
// POST /api/entries/{id}/restore
func (h *EntryHandler) RestoreEntry(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	entry, err := h.tree.Restore(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, entry)
}

// DeleteEntry permanently deletes an entry and its subtree
// DELETE /api/entries/{id}
func (h *EntryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	if err := h.tree.Delete(r.Context(), ownerID, r.PathValue("id")); err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.RespondNoContent(w)
}

// GetContent returns a time-limited download reference for a file
// GET /api/entries/{id}/content
func (h *EntryHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	ref, err := h.tree.DownloadURL(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, ref)
}

// ListTrash lists the roots of trashed subtrees
// GET /api/trash
func (h *EntryHandler) ListTrash(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	entries, err := h.tree.ListTrash(r.Context(), ownerID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, entries)
}

// Search finds entries by name prefix
// GET /api/search?q=&limit=
func (h *EntryHandler) Search(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	limit, err := httputil.QueryInt(r, "limit", config.DefaultSearchLimit)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	entries, err := h.tree.Search(r.Context(), ownerID, r.URL.Query().Get("q"), limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, entries)
}

// usageResponse adds the remaining bytes to the ledger row
type usageResponse struct {
	*models.Usage
	Remaining int64 `json:"remaining"`
}

// GetUsage reports the owner's quota usage
// GET /api/usage
func (h *EntryHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	usage, err := h.tree.Usage(r.Context(), ownerID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, usageResponse{Usage: usage, Remaining: usage.Remaining()})
}
