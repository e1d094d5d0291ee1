package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/httpx"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// decodeBody reads a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "malformed request")
		return false
	}
	return true
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
