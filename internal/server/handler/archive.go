package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

// GameArchiver exports a game ledger to object storage.
type GameArchiver interface {
	ArchiveGame(ctx context.Context, gameID uint64) (string, error)
}

// AdminHandler serves controller-only maintenance routes.
type AdminHandler struct {
	guard    domain.AccessGuard
	archiver GameArchiver
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewAdminHandler wires the admin routes. archiver may be nil when object
// storage is disabled.
func NewAdminHandler(guard domain.AccessGuard, archiver GameArchiver, audit domain.AuditStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{guard: guard, archiver: archiver, audit: audit, logger: logger}
}

// Archive handles POST /api/games/{id}/archive.
func (h *AdminHandler) Archive(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.guard.Require(who); err != nil {
		writeDomainError(w, r, h.logger, "archive", err)
		return
	}
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}
	id, ok := gameID(w, r)
	if !ok {
		return
	}
	key, err := h.archiver.ArchiveGame(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "archive", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"game_id": id, "key": key})
}

type auditEntryResponse struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt string         `json:"created_at"`
}

// Audit handles GET /api/audit?limit=&offset=, newest first.
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.guard.Require(who); err != nil {
		writeDomainError(w, r, h.logger, "audit", err)
		return
	}
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "audit", err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
