package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/careportal/internal/portal/metrics"
	"github.com/aussiebroadwan/careportal/internal/portal/store"
	"github.com/aussiebroadwan/careportal/pkg/fieldcrypt"
	"github.com/aussiebroadwan/careportal/pkg/httpx"
	"github.com/aussiebroadwan/careportal/pkg/portalsdk"
	"github.com/aussiebroadwan/careportal/pkg/securecore"
	"github.com/aussiebroadwan/careportal/pkg/slogx"
)

// auditTrailLimit caps the rotation history returned with key listings.
const auditTrailLimit = 20

// KeysHandler exposes encryption key metadata and manual rotation. Key
// material never leaves the process.
type KeysHandler struct {
	Core    *securecore.Core
	Store   store.Store      // optional: rotation audit trail
	Metrics *metrics.Metrics // optional
}

// HandleRotate handles POST /v1/keys/rotate
//
//	@Summary		Rotate the encryption key
//	@Description	Generates a new current encryption key. Retired keys stay available for decryption under the retention policy.
//	@Tags			Keys
//	@Accept			json
//	@Produce		json
//	@Param			X-CSRF-Token	header		string						true	"CSRF token"
//	@Param			body			body		portalsdk.RotateKeyRequest	false	"Rotation reason"
//	@Success		200				{object}	portalsdk.KeysResponse
//	@Failure		400				{object}	portalsdk.ErrorResponse	"Bad Request"
//	@Failure		401				{object}	portalsdk.ErrorResponse	"Unauthorized"
//	@Failure		403				{object}	portalsdk.ErrorResponse	"Forbidden - requires admin role"
//	@Failure		429				{object}	portalsdk.ErrorResponse	"Too Many Requests"
//	@Security		BearerAuth
//	@Router			/v1/keys/rotate [post]
func (h *KeysHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.RotateKeyRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	switch req.Reason {
	case "":
		req.Reason = fieldcrypt.ReasonManual
	case fieldcrypt.ReasonManual, fieldcrypt.ReasonScheduled:
	default:
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "reason must be manual or scheduled")
		return
	}

	st, err := h.Core.RotateKey(r.Context(), req.Reason)
	if err != nil {
		httpx.WriteCoreError(w, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.ObserveRotation(req.Reason, st.Version)
	}

	httpx.WriteJSON(w, http.StatusOK, h.keysResponse(r))
}

// HandleList handles GET /v1/keys
//
//	@Summary		List encryption keys
//	@Description	Returns metadata for the current and retained keys plus the recent rotation audit trail.
//	@Tags			Keys
//	@Produce		json
//	@Success		200	{object}	portalsdk.KeysResponse
//	@Failure		401	{object}	portalsdk.ErrorResponse	"Unauthorized"
//	@Failure		403	{object}	portalsdk.ErrorResponse	"Forbidden - requires admin or staff role"
//	@Security		BearerAuth
//	@Router			/v1/keys [get]
func (h *KeysHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.keysResponse(r))
}

func (h *KeysHandler) keysResponse(r *http.Request) portalsdk.KeysResponse {
	resp := portalsdk.KeysResponse{
		Current: h.Core.KeyStatus(),
		Keys:    h.Core.Keys(),
	}
	if h.Store == nil {
		return resp
	}

	trail, err := h.Store.KeyRotations().ListKeyRotations(r.Context(), auditTrailLimit)
	if err != nil {
		slogx.FromContext(r.Context()).Warn("failed to load rotation audit trail", "error", err)
		return resp
	}
	for _, rot := range trail {
		resp.Rotations = append(resp.Rotations, portalsdk.RotationRecord{
			KeyID:         rot.KeyID,
			Version:       rot.Version,
			Algorithm:     rot.Algorithm,
			Reason:        rot.Reason,
			RotatedAt:     rot.RotatedAt.Format(time.RFC3339),
			RetiredKeyIDs: rot.RetiredKeyIDs,
		})
	}
	return resp
}
