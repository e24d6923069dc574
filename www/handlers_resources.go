package www

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"shopsync/store"
)

func (h *Handlers) apiListRecords(w http.ResponseWriter, r *http.Request) {
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
	limit, offset := pageParams(r)

	if r.URL.Query().Get("source") == "search" {
		entries, err := h.svc.ListFromSearch(r.Context(), shop, res, limit, offset)
		if err != nil {
			h.syncError(w, err)
			return
		}
		h.jsonOK(w, entries)
		return
	}
	docs, err := h.svc.ListFromDB(shop, res, limit, offset)
	if err != nil {
		h.syncError(w, err)
		return
	}
	if docs == nil {
		docs = []*store.Document{}
	}
	h.jsonOK(w, docs)
}

func (h *Handlers) apiGetRecord(w http.ResponseWriter, r *http.Request) {
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
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.jsonError(w, "invalid id", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("source") == "shopify" {
		parentID, _ := strconv.ParseInt(r.URL.Query().Get("parent_id"), 10, 64)
		rec, err := h.svc.GetFromShopify(r.Context(), shop, res, parentID, id)
		if err != nil {
			h.syncError(w, err)
			return
		}
		h.jsonOK(w, rec)
		return
	}
	doc, err := h.svc.GetFromDB(shop, res, id)
	if err != nil {
		h.syncError(w, err)
		return
	}
	if doc == nil {
		h.jsonError(w, "not found", http.StatusNotFound)
		return
	}
	h.jsonOK(w, doc)
}

func (h *Handlers) apiCountRecords(w http.ResponseWriter, r *http.Request) {
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

	switch r.URL.Query().Get("source") {
	case "shopify":
		n, err := h.svc.CountFromShopify(r.Context(), shop, res)
		if err != nil {
			h.syncError(w, err)
			return
		}
		h.jsonOK(w, map[string]int{"count": n})
	case "search":
		n, err := h.svc.CountFromSearch(r.Context(), shop, res)
		if err != nil {
			h.syncError(w, err)
			return
		}
		h.jsonOK(w, map[string]int64{"count": n})
	default:
		n, err := h.svc.CountFromDB(shop, res)
		if err != nil {
			h.syncError(w, err)
			return
		}
		h.jsonOK(w, map[string]int64{"count": n})
	}
}

func (h *Handlers) apiDiffRecords(w http.ResponseWriter, r *http.Request) {
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
	diff, err := h.svc.DiffSynced(r.Context(), shop, res)
	if err != nil {
		h.syncError(w, err)
		return
	}
	h.jsonOK(w, diff)
}

func (h *Handlers) apiDeleteRecord(w http.ResponseWriter, r *http.Request) {
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
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.jsonError(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeleteSynced(r.Context(), shop, res, id); err != nil {
		h.syncError(w, err)
		return
	}
	h.jsonOK(w, map[string]string{"status": "deleted"})
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
