package common

import (
	"encoding/json"
	"net/http"

	"github.com/icebergrest/catalog/internal/catalog/catalogerr"
)

// RespondJSON sends a JSON response with standard headers
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondCatalogError marshals a catalogerr.Error into the REST catalog's
// stable wire shape at its mapped HTTP status, wrapping any plain error
// into an internal-server-error first.
func RespondCatalogError(w http.ResponseWriter, err error) {
	ce, ok := catalogerr.As(err)
	if !ok {
		ce = catalogerr.Wrap(err)
	}
	RespondJSON(w, ce.HTTPStatus(), ce)
}
