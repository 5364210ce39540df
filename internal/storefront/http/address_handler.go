package http

import (
	"net/http"

	"github.com/fjod/go_storefront/internal/addressbook"
	"github.com/fjod/go_storefront/internal/httpx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type AddressHandler struct {
	sessions *Registry
	log      *zap.Logger
}

func NewAddressHandler(sessions *Registry, log *zap.Logger) *AddressHandler {
	return &AddressHandler{sessions: sessions, log: log}
}

// GET /api/v1/addresses
func (h *AddressHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	sess, release, err := h.sessions.Acquire(r.Context(), sessionID(r.Context()))
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	defer release()
	addrs, err := sess.Addresses.List(r.Context())
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	if addrs == nil {
		addrs = []addressbook.Address{}
	}
	httpx.RespondJSON(w, http.StatusOK, addrs)
}

// POST /api/v1/addresses
func (h *AddressHandler) AddAddress(w http.ResponseWriter, r *http.Request) {
	var a addressbook.Address
	if err := httpx.Decode(w, r, &a); err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	sess, release, err := h.sessions.Acquire(r.Context(), sessionID(r.Context()))
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	defer release()
	a.ID = ""
	saved, err := sess.Addresses.Add(r.Context(), a)
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, saved)
}

// DELETE /api/v1/addresses/{id}
func (h *AddressHandler) RemoveAddress(w http.ResponseWriter, r *http.Request) {
	sess, release, err := h.sessions.Acquire(r.Context(), sessionID(r.Context()))
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	defer release()
	if err := sess.Addresses.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
