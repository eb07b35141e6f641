package snapwatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/snaptrail/idgen"
	"github.com/hazyhaar/snaptrail/kit"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/guard"
)

// Routes returns the status API:
//
//	GET    /health
//	GET    /api/status
//	GET    /api/pages
//	POST   /api/pages
//	GET    /api/pages/{pageID}
//	DELETE /api/pages/{pageID}
//	GET    /api/pages/{pageID}/records
//	GET    /api/pages/{pageID}/records/{snapshotID}
//	GET    /api/events
//	GET    /api/events/{eventID}
func (w *Watcher) Routes() http.Handler {
	ep := w.endpoints()
	r := chi.NewRouter()
	r.Use(guard.Stack(w.logger)...)

	r.Get("/health", func(rw http.ResponseWriter, _ *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", func(rw http.ResponseWriter, req *http.Request) {
			serve(rw, req, ep.status, &pageReq{})
		})

		r.Route("/pages", func(r chi.Router) {
			r.Get("/", func(rw http.ResponseWriter, _ *http.Request) {
				writeJSON(rw, http.StatusOK, w.Pages())
			})
			r.Post("/", func(rw http.ResponseWriter, req *http.Request) {
				var body observeReq
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid json"})
					return
				}
				serveStatus(rw, req, ep.observe, &body, http.StatusCreated)
			})

			r.Route("/{pageID}", func(r chi.Router) {
				r.Get("/", func(rw http.ResponseWriter, req *http.Request) {
					serve(rw, req, ep.status, &pageReq{PageID: chi.URLParam(req, "pageID")})
				})
				r.Delete("/", func(rw http.ResponseWriter, req *http.Request) {
					serve(rw, req, ep.unobserve, &pageReq{PageID: chi.URLParam(req, "pageID")})
				})
				r.Get("/records", func(rw http.ResponseWriter, req *http.Request) {
					recs, err := w.Records(chi.URLParam(req, "pageID"))
					if err != nil {
						writeError(rw, err)
						return
					}
					writeJSON(rw, http.StatusOK, recs)
				})
				r.Get("/records/{snapshotID}", func(rw http.ResponseWriter, req *http.Request) {
					id, err := strconv.ParseInt(chi.URLParam(req, "snapshotID"), 10, 64)
					if err != nil {
						writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid snapshot id"})
						return
					}
					serve(rw, req, ep.record, &recordReq{PageID: chi.URLParam(req, "pageID"), SnapshotID: id})
				})
			})
		})

		r.Get("/events", func(rw http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			serve(rw, req, ep.events, &EventQuery{
				PageID: q.Get("page_id"),
				State:  q.Get("state"),
				Limit:  queryInt(req, "limit", 100),
			})
		})
		r.Get("/events/{eventID}", func(rw http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "eventID")
			ctx := kit.WithEventID(req.Context(), id)
			serve(rw, req.WithContext(ctx), ep.event, &eventReq{EventID: id})
		})
	})

	return r
}

func serve(rw http.ResponseWriter, req *http.Request, ep kit.Endpoint, in any) {
	serveStatus(rw, req, ep, in, http.StatusOK)
}

func serveStatus(rw http.ResponseWriter, req *http.Request, ep kit.Endpoint, in any, code int) {
	ctx := httpContext(req)
	resp, err := ep(ctx, in)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, code, resp)
}

func httpContext(req *http.Request) context.Context {
	ctx := kit.WithTransport(req.Context(), "http")
	id := req.Header.Get("X-Request-ID")
	if id == "" {
		id = idgen.New()
	}
	ctx = kit.WithRequestID(ctx, id)
	if pageID := chi.URLParam(req, "pageID"); pageID != "" {
		ctx = kit.WithPageID(ctx, pageID)
	}
	return ctx
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrInvalid):
		code = http.StatusBadRequest
	case errors.Is(err, ErrNoIndex):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
