// Package httpapi provides the REST HTTP adapter for the view surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hylla/utsikt/internal/app"
	"github.com/hylla/utsikt/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// principalHeader carries the acting principal on mutating requests.
const principalHeader = "X-Utsikt-Principal"

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service *app.Service
	search  *app.SearchIndex
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter.
func NewHandler(service *app.Service, search *app.SearchIndex) *Handler {
	return &Handler{service: service, search: search}
}

// viewPayload is the wire shape of one view.
type viewPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Root        bool   `json:"root"`
}

// itemPayload is the wire shape of one item.
type itemPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// activityPayload is the wire shape of one contributor row.
type activityPayload struct {
	User       string    `json:"user"`
	Job        string    `json:"job"`
	LastChange time.Time `json:"last_change"`
}

// createItemRequest is the POST body for item creation.
type createItemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)
	switch {
	case path == "views":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListViews(w, r)
	case path == "search":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleSearch(w, r)
	default:
		viewName, rest, ok := resolveViewRoute(path)
		if !ok {
			writeJSONError(w, http.StatusNotFound, APIError{
				Code:    "not_found",
				Message: "endpoint not found",
			})
			return
		}
		h.serveViewRoute(w, r, viewName, rest)
	}
}

// serveViewRoute dispatches `/views/{name}` subresources.
func (h *Handler) serveViewRoute(w http.ResponseWriter, r *http.Request, viewName, rest string) {
	switch rest {
	case "":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleGetView(w, r, viewName)
	case "items":
		switch r.Method {
		case http.MethodGet:
			h.handleListItems(w, r, viewName)
		case http.MethodPost:
			h.handleCreateItem(w, r, viewName)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case "people":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handlePeople(w, r, viewName)
	case "feed":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleFeed(w, r, viewName)
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

// handleListViews serves GET `/views`.
func (h *Handler) handleListViews(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListViews(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	payload := make([]viewPayload, 0, len(views))
	for _, view := range views {
		payload = append(payload, toViewPayload(view))
	}
	writeJSON(w, http.StatusOK, map[string]any{"views": payload})
}

// handleGetView serves GET `/views/{name}`.
func (h *Handler) handleGetView(w http.ResponseWriter, r *http.Request, viewName string) {
	view, err := h.service.GetView(r.Context(), viewName)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toViewPayload(view))
}

// handleListItems serves GET `/views/{name}/items`.
func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request, viewName string) {
	items, err := h.service.Items(r.Context(), viewName)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	payload := make([]itemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, itemPayload{
			Name:        item.Name,
			Description: item.Description,
			URL:         item.URL(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": payload})
}

// handleCreateItem serves POST `/views/{name}/items`.
func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request, viewName string) {
	var req createItemRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), app.CreateItemInput{
		View:        viewName,
		Principal:   r.Header.Get(principalHeader),
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, itemPayload{
		Name:        item.Name,
		Description: item.Description,
		URL:         item.URL(),
	})
}

// handlePeople serves GET `/views/{name}/people`.
func (h *Handler) handlePeople(w http.ResponseWriter, r *http.Request, viewName string) {
	people, err := h.service.People(r.Context(), viewName)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	payload := make([]activityPayload, 0, len(people))
	for _, row := range people {
		payload = append(payload, activityPayload{
			User:       row.User,
			Job:        row.Job,
			LastChange: row.LastChange,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"people": payload})
}

// handleFeed serves GET `/views/{name}/feed?filter=all|failed` as Atom.
func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request, viewName string) {
	filter := r.URL.Query().Get("filter")
	if strings.TrimSpace(filter) == "" {
		filter = string(app.FeedAll)
	}
	view, err := h.service.GetView(r.Context(), viewName)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	feed, err := h.service.BuildFeed(r.Context(), viewName, app.FeedFilter(filter))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeAtom(w, feed, view.AbsoluteURL(requestRoot(r)))
}

// requestRoot reconstructs the externally visible root URL of the request.
func requestRoot(r *http.Request) string {
	if r.Host == "" {
		return ""
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// handleSearch serves GET `/search?q={key}&suggest=1`.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		writeJSONError(w, http.StatusNotImplemented, APIError{
			Code:    "not_implemented",
			Message: "search index is not configured",
		})
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "q is required",
		})
		return
	}
	if r.URL.Query().Get("suggest") != "" {
		matches, err := h.search.Suggest(r.Context(), query)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suggestions": matches})
		return
	}
	entry, found, err := h.search.Find(r.Context(), query)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	if !found {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: fmt.Sprintf("no target named %q", query),
		})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// toViewPayload maps a view onto its wire shape.
func toViewPayload(view domain.View) viewPayload {
	return viewPayload{
		Name:        view.Name,
		Description: view.Description,
		URL:         view.URL(),
		Root:        view.Root,
	}
}

// resolveViewRoute parses `views/{name}` and `views/{name}/{rest}`.
func resolveViewRoute(path string) (viewName, rest string, ok bool) {
	const prefix = "views/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	remainder := strings.TrimPrefix(path, prefix)
	viewName, rest, _ = strings.Cut(remainder, "/")
	viewName = strings.TrimSpace(viewName)
	if viewName == "" || strings.Contains(rest, "/") {
		return "", "", false
	}
	return viewName, rest, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps service errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, app.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrPermissionDenied):
		writeJSONError(w, http.StatusForbidden, APIError{
			Code:    "permission_denied",
			Message: err.Error(),
			Hint:    "Send the acting principal in the " + principalHeader + " header.",
		})
	case errors.Is(err, domain.ErrItemExists), errors.Is(err, domain.ErrViewExists):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "already_exists",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidViewName),
		errors.Is(err, domain.ErrInvalidPermission),
		errors.Is(err, app.ErrInvalidFeedFilter):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(domain.ErrInvalidName, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", domain.ErrInvalidName)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
