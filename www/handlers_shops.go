package www

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shopsync/store"
)

func (h *Handlers) apiListShops(w http.ResponseWriter, r *http.Request) {
	shops, err := h.db.ListShops()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if shops == nil {
		shops = []*store.Shop{}
	}
	h.jsonOK(w, shops)
}

func (h *Handlers) apiUpsertShop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Domain      string `json:"domain"`
		AccessToken string `json:"access_token"`
		Scopes      string `json:"scopes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Domain == "" {
		h.jsonError(w, "name and domain required", http.StatusBadRequest)
		return
	}
	shop := &store.Shop{
		Name:        req.Name,
		Domain:      req.Domain,
		AccessToken: req.AccessToken,
		Scopes:      req.Scopes,
	}
	if err := h.db.UpsertShop(shop); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// Drop any cached client so the next call picks up the new token.
	if h.clients != nil {
		h.clients.Evict(shop.Name)
	}
	h.jsonOK(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiDeleteShop(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.db.DeleteShop(name); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if h.clients != nil {
		h.clients.Evict(name)
	}
	h.jsonOK(w, map[string]string{"status": "deleted"})
}
