package common

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// CRUDHandler provides a generic implementation for standard CRUD API
// endpoints. Each callback owns the full operation: validation, store call,
// and any shaping of the result.
type CRUDHandler[T any] struct {
	Deps *Dependencies
	Name string // Entity name for error messages

	ListFunc   func(ctx context.Context) ([]T, error)
	CreateFunc func(ctx context.Context, input T) (T, error)
	GetFunc    func(ctx context.Context, id uuid.UUID) (T, error)
	UpdateFunc func(ctx context.Context, id uuid.UUID, input T) (T, error)
	DeleteFunc func(ctx context.Context, id uuid.UUID) error
}

// List handles GET requests
func (h *CRUDHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	if h.ListFunc == nil {
		SendError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "List not supported", nil)
		return
	}

	items, err := h.ListFunc(r.Context())
	if HandleStoreError(w, r, err, h.Name) {
		return
	}

	SendListResponse(w, items, len(items))
}

// Create handles POST requests
func (h *CRUDHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	if h.CreateFunc == nil {
		SendError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Create not supported", nil)
		return
	}

	input, ok := DecodeJSON[T](w, r)
	if !ok {
		return
	}

	item, err := h.CreateFunc(r.Context(), input)
	if HandleStoreError(w, r, err, h.Name) {
		return
	}

	SendJSON(w, http.StatusCreated, item)
}

// Get handles GET /{id} requests
func (h *CRUDHandler[T]) Get(w http.ResponseWriter, r *http.Request) {
	if h.GetFunc == nil {
		SendError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Get not supported", nil)
		return
	}

	id, ok := ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	item, err := h.GetFunc(r.Context(), id)
	if HandleStoreError(w, r, err, h.Name) {
		return
	}

	SendJSON(w, http.StatusOK, item)
}

// Update handles PUT/PATCH /{id} requests
func (h *CRUDHandler[T]) Update(w http.ResponseWriter, r *http.Request) {
	if h.UpdateFunc == nil {
		SendError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Update not supported", nil)
		return
	}

	id, ok := ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	input, ok := DecodeJSON[T](w, r)
	if !ok {
		return
	}

	item, err := h.UpdateFunc(r.Context(), id, input)
	if HandleStoreError(w, r, err, h.Name) {
		return
	}

	SendJSON(w, http.StatusOK, item)
}

// Delete handles DELETE /{id} requests
func (h *CRUDHandler[T]) Delete(w http.ResponseWriter, r *http.Request) {
	if h.DeleteFunc == nil {
		SendError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Delete not supported", nil)
		return
	}

	id, ok := ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	err := h.DeleteFunc(r.Context(), id)
	if HandleStoreError(w, r, err, h.Name) {
		return
	}

	SendJSON(w, http.StatusNoContent, nil)
}
