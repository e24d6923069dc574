package www

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shopsync/shopify"
	"shopsync/syncer"
)

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// syncError writes a structured sync failure with the HTTP status its kind
// maps to.
func (h *Handlers) syncError(w http.ResponseWriter, err error) {
	se := syncer.Classify(err)
	code := http.StatusInternalServerError
	switch se.Kind {
	case syncer.KindAlreadyRunning:
		code = http.StatusConflict
	case syncer.KindNotFound:
		code = http.StatusNotFound
	case syncer.KindBadOptions:
		code = http.StatusBadRequest
	case shopify.KindRateLimited:
		code = http.StatusTooManyRequests
	case shopify.KindClientError, shopify.KindServerError:
		code = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"error": se})
}

var errMissingShop = errors.New("shop parameter required")

func shopParam(r *http.Request) (string, error) {
	shop := r.URL.Query().Get("shop")
	if shop == "" {
		return "", errMissingShop
	}
	return shop, nil
}

func resourceParam(r *http.Request) (shopify.Resource, error) {
	return shopify.ParseResource(chi.URLParam(r, "resource"))
}
