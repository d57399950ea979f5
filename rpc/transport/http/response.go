package http

import (
	"net/http"

	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/rpc/common"
)

// WriteJSON writes v as a JSON body with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", common.ContentTypeJSON)
	w.WriteHeader(status)
	if err := common.JSON.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Failed to write response: %v", err)
	}
}

// WriteError writes err as common.ErrorResponse. The status is derived from the code of
// the error, errors that are not a *store.Error are answered with 500.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, store.CodeOf(err).HTTPStatus(), common.NewErrorResponse(err))
}
