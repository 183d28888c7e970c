package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"
)

// Download handles GET /api/downloads/{token} with a ZIP of the purchased
// files.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	b, err := h.downloads.Issue(r.Context(), r.PathValue("token"))
	if err != nil {
		fail(w, r, err)
		return
	}
	data, err := b.Build(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+b.Filename()+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Album handles GET /api/albums/{hash}. Only previews are linked.
func (h *Handler) Album(w http.ResponseWriter, r *http.Request) {
	a, err := h.albums.GetAlbumByHash(r.Context(), r.PathValue("hash"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Int64(a.ID) })
			e.Field("title", func(e *jx.Encoder) { e.Str(a.Title) })
			e.Field("hash", func(e *jx.Encoder) { e.Str(a.Hash) })
			if a.EventDate != nil {
				e.Field("event_date", func(e *jx.Encoder) { e.Str(a.EventDate.Format("2006-01-02")) })
			}
			e.Field("assets", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, asset := range a.Assets {
						e.Obj(func(e *jx.Encoder) {
							e.Field("id", func(e *jx.Encoder) { e.Int64(asset.ID) })
							e.Field("preview_url", func(e *jx.Encoder) { e.Str(h.previewURL(asset.LowResPath)) })
							e.Field("low_price", func(e *jx.Encoder) { optMoney(e, asset.LowPrice) })
							e.Field("high_price", func(e *jx.Encoder) { optMoney(e, asset.HighPrice) })
						})
					}
				})
			})
		})
	})
}
