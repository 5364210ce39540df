package http

import (
	"net/http"

	"github.com/fjod/go_storefront/internal/api"
	"github.com/fjod/go_storefront/internal/httpx"
	"go.uber.org/zap"
)

type ProfileHandler struct {
	profiles Profiles
	log      *zap.Logger
}

func NewProfileHandler(p Profiles, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: p, log: log}
}

// GET /api/v1/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Get(r.Context(), claims(r).UserID)
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, p)
}

// PATCH /api/v1/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateProfileRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	p, err := h.profiles.Update(r.Context(), claims(r).UserID, req)
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, p)
}
