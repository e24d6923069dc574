package www

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"shopsync/shopify"
	"shopsync/store"
	"shopsync/syncer"
)

func (h *Handlers) apiStartSync(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := resourceParam(r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusNotFound)
		return
	}

	opts := syncer.DefaultStartSyncOptions()
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && err != io.EOF {
		h.jsonError(w, "invalid options: "+err.Error(), http.StatusBadRequest)
		return
	}

	p, err := h.orch.StartSync(r.Context(), shop, res, opts)
	if err != nil {
		h.syncError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(p)
}

func (h *Handlers) apiCancelSync(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := resourceParam(r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	p, err := h.orch.CancelSync(shop, res)
	if err != nil {
		h.syncError(w, err)
		return
	}
	h.jsonOK(w, p)
}

func (h *Handlers) apiSyncProgress(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := resourceParam(r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	p, err := h.orch.GetSyncProgress(shop, res)
	if err != nil {
		h.syncError(w, err)
		return
	}
	if p == nil {
		h.jsonError(w, "never synced", http.StatusNotFound)
		return
	}
	h.jsonOK(w, p)
}

func (h *Handlers) apiListSyncRuns(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var res shopify.Resource
	if name := r.URL.Query().Get("resource"); name != "" {
		res, err = shopify.ParseResource(name)
		if err != nil {
			h.jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.orch.ListSyncProgress(shop, res, limit)
	if err != nil {
		h.syncError(w, err)
		return
	}
	if runs == nil {
		runs = []*store.SyncProgress{}
	}
	h.jsonOK(w, runs)
}
