/*
Package portalsdk provides a client for the careportal security API.

# Overview

An SDKClient talks to the public endpoints and opens sessions. A Session
carries the bearer token, the refresh token and the current CSRF token, and
attaches all three to every state-changing request:

	client := portalsdk.NewSDKClient("https://portal.example.com")

	session, err := client.OpenSession(ctx, portalsdk.IssueSessionRequest{
		UserID: "patient-42",
		Email:  "patient@example.com",
		Role:   "patient",
	})

	field, err := session.Protect(ctx, map[string]string{"ssn": "123-45-6789"})
	values, err := session.Reveal(ctx, field, false)

	err = session.End(ctx)

# CSRF rotation

The server may hand back a fresh CSRF token on any authorized request. The
Session picks it up from the X-CSRF-Token response header and uses it from
then on, so callers never handle rotation themselves.

# Errors

Non-2xx responses are returned as *APIError. Rate-limited responses carry
RetryAfter from the Retry-After header:

	var apiErr *portalsdk.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		time.Sleep(apiErr.RetryAfter)
	}
*/
package portalsdk
