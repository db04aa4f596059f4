// Package server exposes the ledger and file workflows over a JSON HTTP API.
// Callers identify themselves with the X-Nova-Principal header; verifying
// that the principal actually controls the named account is an outer
// concern (wallet signatures, gateway auth) and out of scope here.
package server

import (
	"log/slog"
	"net/http"

	"github.com/jcarbonnell/nova-sdk/internal/ledger"
	"github.com/jcarbonnell/nova-sdk/pkg/nova"
)

// Handler serves the HTTP API.
type Handler struct {
	ledger  *ledger.Ledger
	service *nova.Service
	logger  *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates an API handler over the ledger and workflow service.
func NewHandler(l *ledger.Ledger, service *nova.Service, opts ...Option) *Handler {
	h := &Handler{
		ledger:  l,
		service: service,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers every endpoint on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /groups", h.handleRegisterGroup)
	mux.HandleFunc("POST /groups/{group}/members", h.handleAddMember)
	mux.HandleFunc("DELETE /groups/{group}/members/{user}", h.handleRevokeMember)
	mux.HandleFunc("GET /groups/{group}/authorized/{user}", h.handleIsAuthorized)
	mux.HandleFunc("PUT /groups/{group}/key", h.handleStoreKey)
	mux.HandleFunc("GET /groups/{group}/key", h.handleGetKey)
	mux.HandleFunc("GET /groups/{group}/transactions", h.handleListTransactions)
	mux.HandleFunc("GET /groups/{group}/tree", h.handleTreeHead)
	mux.HandleFunc("GET /groups/{group}/verify", h.handleVerify)
	mux.HandleFunc("POST /groups/{group}/files", h.handleUpload)
	mux.HandleFunc("GET /groups/{group}/files/{cid}", h.handleRetrieve)
	mux.HandleFunc("GET /healthz", h.handleHealthz)

	return mux
}
