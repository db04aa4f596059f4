package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jcarbonnell/nova-sdk/internal/ledger"
	"github.com/jcarbonnell/nova-sdk/internal/storage/ipfs"
	"github.com/jcarbonnell/nova-sdk/pkg/nova"
	"github.com/jcarbonnell/nova-sdk/pkg/types"
)

// principalHeader carries the acting account id. The header value is trusted
// as-is; signature verification happens upstream.
const principalHeader = "X-Nova-Principal"

type registerGroupRequest struct {
	GroupID string `json:"group_id"`
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
}

type storeKeyRequest struct {
	KeyB64 string `json:"key_b64"`
}

type uploadRequest struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

func (h *Handler) handleRegisterGroup(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req registerGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GroupID == "" {
		http.Error(w, "invalid request body: group_id required", http.StatusBadRequest)
		return
	}

	if err := h.ledger.RegisterGroup(r.Context(), principal, req.GroupID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, types.Group{ID: req.GroupID, Owner: principal})
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid request body: user_id required", http.StatusBadRequest)
		return
	}

	if err := h.ledger.AddMember(r.Context(), principal, r.PathValue("group"), req.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokeMember(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.ledger.RevokeMember(r.Context(), principal, r.PathValue("group"), r.PathValue("user")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleIsAuthorized(w http.ResponseWriter, r *http.Request) {
	authorized, err := h.ledger.IsAuthorized(r.Context(), r.PathValue("group"), r.PathValue("user"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"authorized": authorized})
}

func (h *Handler) handleStoreKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req storeKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.KeyB64 == "" {
		http.Error(w, "invalid request body: key_b64 required", http.StatusBadRequest)
		return
	}

	if err := h.ledger.StoreKey(r.Context(), principal, r.PathValue("group"), req.KeyB64); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	keyB64, err := h.ledger.GetKey(r.Context(), principal, r.PathValue("group"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"key_b64": keyB64})
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	subject := r.URL.Query().Get("user")
	if subject == "" {
		subject = principal
	}

	records, err := h.ledger.ListTransactions(r.Context(), principal, r.PathValue("group"), subject)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"transactions": records})
}

func (h *Handler) handleTreeHead(w http.ResponseWriter, r *http.Request) {
	size, root, err := h.ledger.TreeHead(r.Context(), r.PathValue("group"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"tree_size": size,
		"root":      hex.EncodeToString(root),
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	result, err := h.service.Verify(nova.WithPrincipal(r.Context(), principal), r.PathValue("group"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Data) == 0 {
		http.Error(w, "invalid request body: data required", http.StatusBadRequest)
		return
	}

	result, err := h.service.Upload(r.Context(), r.PathValue("group"), principal, req.Data, req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	ctx := nova.WithPrincipal(r.Context(), principal)
	result, err := h.service.Retrieve(ctx, r.PathValue("group"), r.PathValue("cid"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (string, bool) {
	principal := r.Header.Get(principalHeader)
	if principal == "" {
		http.Error(w, "missing "+principalHeader+" header", http.StatusUnauthorized)
		return "", false
	}
	return principal, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrAlreadyExists), errors.Is(err, ledger.ErrAlreadyMember):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrNotAMember),
		errors.Is(err, ledger.ErrNoKeySet),
		errors.Is(err, ledger.ErrInvalidKey),
		errors.Is(err, nova.ErrInvalidContentID):
		status = http.StatusBadRequest
	case errors.Is(err, nova.ErrNoPrincipal):
		status = http.StatusUnauthorized
	case errors.Is(err, ipfs.ErrTimeout):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}
