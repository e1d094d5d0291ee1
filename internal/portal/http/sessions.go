package http

import (
	"net/http"

	"github.com/aussiebroadwan/careportal/pkg/httpx"
	"github.com/aussiebroadwan/careportal/pkg/jwtx"
	"github.com/aussiebroadwan/careportal/pkg/portalsdk"
	"github.com/aussiebroadwan/careportal/pkg/securecore"
)

// SessionsHandler opens, refreshes and ends portal sessions.
type SessionsHandler struct {
	Core          *securecore.Core
	SecureCookies bool
}

// HandleIssue handles POST /v1/sessions
//
//	@Summary		Open a session
//	@Description	Issues an access token, a refresh token and a CSRF token for an already authenticated user.
//	@Description	The CSRF token is also set as the csrf-token cookie.
//	@Tags			Sessions
//	@Accept			json
//	@Produce		json
//	@Param			X-Session-Issuer-Token	header		string							true	"Login controller credential"
//	@Param			body					body		portalsdk.IssueSessionRequest	true	"User identity"
//	@Success		201						{object}	portalsdk.SessionResponse
//	@Failure		400						{object}	portalsdk.ErrorResponse	"Bad Request"
//	@Failure		401						{object}	portalsdk.ErrorResponse	"Unauthorized - issuer credential missing or wrong"
//	@Failure		429						{object}	portalsdk.ErrorResponse	"Too Many Requests"
//	@Router			/v1/sessions [post]
func (h *SessionsHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.IssueSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	role, err := jwtx.ParseRole(req.Role)
	if err != nil || req.UserID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "user_id and a known role are required")
		return
	}

	s, err := h.Core.IssueSession(r.Context(), securecore.User{ID: req.UserID, Email: req.Email, Role: role})
	if err != nil {
		httpx.WriteCoreError(w, err)
		return
	}

	httpx.SetCSRFCookie(w, s.CSRF, h.SecureCookies)
	httpx.WriteJSON(w, http.StatusCreated, portalsdk.SessionResponse{
		SessionID:        s.Record.SessionID,
		AccessToken:      s.Tokens.Access.Token,
		RefreshToken:     s.Tokens.Refresh.Token,
		TokenType:        "Bearer",
		ExpiresIn:        seconds(s.Tokens.Access.ExpiresAt.Sub(s.Tokens.Access.Claims.IssuedAt.Time)),
		RefreshExpiresIn: seconds(s.Tokens.Refresh.ExpiresAt.Sub(s.Tokens.Refresh.Claims.IssuedAt.Time)),
		CSRFToken:        s.CSRF.Value,
		CSRFExpiresIn:    seconds(s.CSRF.ExpiresAt.Sub(s.CSRF.IssuedAt)),
	})
}

// HandleRefresh handles POST /v1/sessions/refresh
//
//	@Summary		Refresh the access token
//	@Description	Exchanges a refresh token for a new access token bound to the same session.
//	@Tags			Sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		portalsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	portalsdk.TokenResponse
//	@Failure		400		{object}	portalsdk.ErrorResponse	"Bad Request"
//	@Failure		401		{object}	portalsdk.ErrorResponse	"Unauthorized"
//	@Failure		429		{object}	portalsdk.ErrorResponse	"Too Many Requests"
//	@Router			/v1/sessions/refresh [post]
func (h *SessionsHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.RefreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "refresh_token is required")
		return
	}

	tok, err := h.Core.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		httpx.WriteCoreError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, portalsdk.TokenResponse{
		AccessToken: tok.Token,
		TokenType:   "Bearer",
		ExpiresIn:   seconds(tok.ExpiresAt.Sub(tok.Claims.IssuedAt.Time)),
	})
}

// HandleEnd handles DELETE /v1/sessions/current
//
//	@Summary		End the current session
//	@Description	Revokes every CSRF token and JWT of the caller's session.
//	@Tags			Sessions
//	@Param			X-CSRF-Token	header	string	true	"CSRF token"
//	@Success		204
//	@Failure		401	{object}	portalsdk.ErrorResponse	"Unauthorized"
//	@Failure		403	{object}	portalsdk.ErrorResponse	"Forbidden"
//	@Security		BearerAuth
//	@Router			/v1/sessions/current [delete]
func (h *SessionsHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	if err := h.Core.EndSession(r.Context(), httpx.SessionIDFromContext(r.Context())); err != nil {
		httpx.WriteCoreError(w, err)
		return
	}
	httpx.ClearCSRFCookie(w, h.SecureCookies)
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleCSRF handles GET /v1/csrf
//
//	@Summary		Issue a CSRF token
//	@Description	Issues an additional CSRF token for the caller's session and sets it as the csrf-token cookie.
//	@Tags			Sessions
//	@Produce		json
//	@Success		200	{object}	portalsdk.CSRFResponse
//	@Failure		401	{object}	portalsdk.ErrorResponse	"Unauthorized"
//	@Security		BearerAuth
//	@Router			/v1/csrf [get]
func (h *SessionsHandler) HandleCSRF(w http.ResponseWriter, r *http.Request) {
	tok, err := h.Core.IssueCSRF(r.Context(), httpx.SessionIDFromContext(r.Context()))
	if err != nil {
		httpx.WriteCoreError(w, err)
		return
	}

	httpx.SetCSRFCookie(w, tok, h.SecureCookies)
	httpx.WriteJSON(w, http.StatusOK, portalsdk.CSRFResponse{
		CSRFToken: tok.Value,
		ExpiresIn: seconds(tok.ExpiresAt.Sub(tok.IssuedAt)),
	})
}
