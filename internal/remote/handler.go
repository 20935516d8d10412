package remote

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/roach88/habitsync/internal/model"
)

// maxBodyBytes bounds request bodies; a full snapshot is the largest.
const maxBodyBytes = 16 << 20

// Handler serves the REST routes RESTClient speaks, backed by a Directory.
//
//	GET    /v1/users/{user}/snapshot
//	PUT    /v1/users/{user}/snapshot
//	POST   /v1/users/{user}/journal
//	DELETE /v1/users/{user}/journal/{id}
//	POST   /v1/users/{user}/catalogs/{kind}
//	DELETE /v1/users/{user}/catalogs/{kind}/{id}
type Handler struct {
	router *mux.Router
	dir    Directory
	token  string
	logger *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithBearerToken requires every request to carry token.
func WithBearerToken(token string) HandlerOption {
	return func(h *Handler) {
		h.token = token
	}
}

// WithHandlerLogger sets the request logger. Defaults to slog.Default().
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// NewHandler builds the router over dir.
func NewHandler(dir Directory, opts ...HandlerOption) *Handler {
	h := &Handler{
		router: mux.NewRouter(),
		dir:    dir,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	v1 := h.router.PathPrefix("/v1/users/{user}").Subrouter()
	v1.HandleFunc("/snapshot", h.fetchSnapshot).Methods(http.MethodGet)
	v1.HandleFunc("/snapshot", h.pushSnapshot).Methods(http.MethodPut)
	v1.HandleFunc("/journal", h.appendJournalEntry).Methods(http.MethodPost)
	v1.HandleFunc("/journal/{id}", h.deleteJournalEntry).Methods(http.MethodDelete)
	v1.HandleFunc("/catalogs/{kind}", h.upsertCatalogRow).Methods(http.MethodPost)
	v1.HandleFunc("/catalogs/{kind}/{id}", h.deleteCatalogRow).Methods(http.MethodDelete)
	v1.Use(h.authenticate)

	h.router.NotFoundHandler = http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		writeError(rw, http.StatusNotFound, "no such route")
	})
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(rw, r)
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
				writeError(rw, http.StatusUnauthorized, "missing or invalid bearer token")
				return
			}
		}
		next.ServeHTTP(rw, r)
	})
}

func (h *Handler) client(r *http.Request) Client {
	return h.dir.ForUser(mux.Vars(r)["user"])
}

func (h *Handler) fetchSnapshot(rw http.ResponseWriter, r *http.Request) {
	snap, err := h.client(r).FetchSnapshot(r.Context())
	if err != nil {
		h.fail(rw, r, err)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(snap); err != nil {
		h.logger.Error("encode snapshot", "error", err)
	}
}

func (h *Handler) pushSnapshot(rw http.ResponseWriter, r *http.Request) {
	var snap model.Snapshot
	if !h.decode(rw, r, &snap) {
		return
	}
	h.done(rw, r, h.client(r).PushSnapshot(r.Context(), snap))
}

func (h *Handler) appendJournalEntry(rw http.ResponseWriter, r *http.Request) {
	var entry model.JournalEntry
	if !h.decode(rw, r, &entry) {
		return
	}
	if entry.ID == "" {
		writeError(rw, http.StatusBadRequest, "journal entry id is required")
		return
	}
	h.done(rw, r, h.client(r).AppendJournalEntry(r.Context(), entry))
}

func (h *Handler) deleteJournalEntry(rw http.ResponseWriter, r *http.Request) {
	h.done(rw, r, h.client(r).DeleteJournalEntry(r.Context(), mux.Vars(r)["id"]))
}

func (h *Handler) upsertCatalogRow(rw http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !h.decode(rw, r, &raw) {
		return
	}
	kind := model.Kind(mux.Vars(r)["kind"])
	h.done(rw, r, h.client(r).UpsertCatalogRow(r.Context(), kind, raw))
}

func (h *Handler) deleteCatalogRow(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	h.done(rw, r, h.client(r).DeleteCatalogRow(r.Context(), model.Kind(vars["kind"]), model.EntityID(vars["id"])))
}

func (h *Handler) decode(rw http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) done(rw http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.fail(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(rw http.ResponseWriter, r *http.Request, err error) {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		writeError(rw, rejected.Status, rejected.Message)
		return
	}
	h.logger.Error("remote request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	status := http.StatusInternalServerError
	if errors.Is(err, ErrUnreachable) {
		status = http.StatusServiceUnavailable
	}
	writeError(rw, status, err.Error())
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(apiError{Error: msg})
}
