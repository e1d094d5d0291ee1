package http

import (
	"net/http"

	"github.com/aussiebroadwan/careportal/pkg/httpx"
	"github.com/aussiebroadwan/careportal/pkg/portalsdk"
	"github.com/aussiebroadwan/careportal/pkg/securecore"
	"github.com/aussiebroadwan/careportal/pkg/slogx"
)

// FieldsHandler seals and opens protected values.
type FieldsHandler struct {
	Core *securecore.Core
}

// HandleProtect handles POST /v1/fields/protect
//
//	@Summary		Protect values
//	@Description	Seals the named values with the current encryption key. A single value is sealed as-is, several are sealed together.
//	@Tags			Fields
//	@Accept			json
//	@Produce		json
//	@Param			X-CSRF-Token	header		string						true	"CSRF token"
//	@Param			body			body		portalsdk.ProtectRequest	true	"Values to protect"
//	@Success		200				{object}	portalsdk.EncryptedField
//	@Failure		400				{object}	portalsdk.ErrorResponse	"Bad Request"
//	@Failure		401				{object}	portalsdk.ErrorResponse	"Unauthorized"
//	@Failure		403				{object}	portalsdk.ErrorResponse	"Forbidden"
//	@Security		BearerAuth
//	@Router			/v1/fields/protect [post]
func (h *FieldsHandler) HandleProtect(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.ProtectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	f, err := h.Core.ProtectFields(r.Context(), req.Values)
	if err != nil {
		httpx.WriteCoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, f)
}

// HandleReveal handles POST /v1/fields/reveal
//
//	@Summary		Reveal values
//	@Description	Opens an encrypted field. With redact=true a field that cannot be opened is answered with "[REDACTED]" values instead of an error.
//	@Tags			Fields
//	@Accept			json
//	@Produce		json
//	@Param			X-CSRF-Token	header		string						true	"CSRF token"
//	@Param			redact			query		bool						false	"Redact instead of failing"
//	@Param			body			body		portalsdk.EncryptedField	true	"Encrypted field"
//	@Success		200				{object}	portalsdk.RevealResponse
//	@Failure		400				{object}	portalsdk.ErrorResponse	"Bad Request"
//	@Failure		401				{object}	portalsdk.ErrorResponse	"Unauthorized"
//	@Failure		403				{object}	portalsdk.ErrorResponse	"Forbidden"
//	@Failure		422				{object}	portalsdk.ErrorResponse	"Field cannot be opened"
//	@Security		BearerAuth
//	@Router			/v1/fields/reveal [post]
func (h *FieldsHandler) HandleReveal(w http.ResponseWriter, r *http.Request) {
	var f portalsdk.EncryptedField
	if !decodeBody(w, r, &f) {
		return
	}

	values, err := h.Core.RevealFields(r.Context(), f)
	if err != nil {
		if r.URL.Query().Get("redact") != "true" {
			httpx.WriteCoreError(w, err)
			return
		}
		slogx.FromContext(r.Context()).Warn("field redacted", "key_id", f.Metadata.KeyID)

		values = make(map[string]string, len(f.Metadata.EncryptedFields))
		for _, name := range f.Metadata.EncryptedFields {
			values[name] = securecore.Redacted
		}
		httpx.WriteJSON(w, http.StatusOK, portalsdk.RevealResponse{Values: values, Redacted: true})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, portalsdk.RevealResponse{Values: values})
}
