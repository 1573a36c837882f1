package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kwv/photocluster/cluster"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// viewportRequest is the body of POST /viewport
type viewportRequest struct {
	TopLeft     cluster.Coordinate `json:"topLeft"`
	BottomRight cluster.Coordinate `json:"bottomRight"`
	Zoom        *int               `json:"zoom,omitempty"`
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(tracker *cluster.Tracker, engine *cluster.Engine, registry *prometheus.Registry, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http"))
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(v); err != nil {
			logger.Warn("encoding response", zap.Error(err))
		}
	}

	// currentPass returns the pass selected by the query: an ad hoc pass when
	// bounds are given, otherwise the tracker's last pass.
	currentPass := func(w http.ResponseWriter, r *http.Request) (*cluster.Result, cluster.Viewport, bool) {
		q := r.URL.Query()
		if q.Has("north") || q.Has("south") || q.Has("east") || q.Has("west") {
			res, v, err := adhocPass(r, tracker, engine)
			if err != nil {
				status := http.StatusBadRequest
				if !errors.Is(err, cluster.ErrInvalidViewport) && !errors.Is(err, errBadQuery) {
					status = http.StatusInternalServerError
				}
				http.Error(w, err.Error(), status)
				return nil, cluster.Viewport{}, false
			}
			return res, v, true
		}

		res := tracker.Result()
		if res == nil {
			http.Error(w, "No clustering pass available", http.StatusServiceUnavailable)
			return nil, cluster.Viewport{}, false
		}
		return res, tracker.Viewport(), true
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health request", zap.String("remote", r.RemoteAddr))
		status := struct {
			Status     string    `json:"status"`
			Timestamp  time.Time `json:"timestamp"`
			HasMarkers bool      `json:"hasMarkers"`
			Markers    int       `json:"markers"`
			Zoom       int       `json:"zoom"`
		}{
			Status:     "ok",
			Timestamp:  time.Now(),
			HasMarkers: tracker.HasMarkers(),
			Markers:    len(tracker.Markers()),
			Zoom:       tracker.Zoom(),
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("GET /clusters", func(w http.ResponseWriter, r *http.Request) {
		res, _, ok := currentPass(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, newClusterResponse(res))
	})

	mux.HandleFunc("GET /clusters.geojson", func(w http.ResponseWriter, r *http.Request) {
		res, _, ok := currentPass(w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		if err := json.NewEncoder(w).Encode(cluster.NodesToFeatureCollection(res.Nodes, res.Hints)); err != nil {
			logger.Warn("encoding GeoJSON", zap.Error(err))
		}
	})

	mux.HandleFunc("GET /decluster", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.URL.Query().Get("id"))
		if err != nil {
			http.Error(w, "id must be an integer", http.StatusBadRequest)
			return
		}
		zoom, ok := tracker.DeclusterZoom(id)
		if !ok {
			http.Error(w, fmt.Sprintf("marker %d not in the current pass", id), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"id": id, "zoom": zoom})
	})

	mux.HandleFunc("GET /nearest", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
		lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
		pos := cluster.Coordinate{Lat: lat, Lon: lon}
		if errLat != nil || errLon != nil || !pos.Valid() {
			http.Error(w, "lat and lon must be valid coordinates", http.StatusBadRequest)
			return
		}
		nearby := tracker.Nearest(pos)
		if nearby == nil {
			nearby = []cluster.NearbyMarker{}
		}
		writeJSON(w, http.StatusOK, nearby)
	})

	mux.HandleFunc("GET /preview.svg", func(w http.ResponseWriter, r *http.Request) {
		res, v, ok := currentPass(w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := cluster.NewPreview(res, v).WriteSVG(w); err != nil {
			logger.Warn("encoding SVG preview", zap.Error(err))
		}
	})

	mux.HandleFunc("GET /preview.png", func(w http.ResponseWriter, r *http.Request) {
		res, v, ok := currentPass(w, r)
		if !ok {
			return
		}
		p := cluster.NewPreview(res, v)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")

		var err error
		if r.URL.Query().Get("renderer") == "vector" {
			err = p.WriteVectorPNG(w)
		} else {
			err = p.WritePNG(w)
		}
		if err != nil {
			logger.Warn("encoding PNG preview", zap.Error(err))
		}
	})

	mux.HandleFunc("POST /markers", func(w http.ResponseWriter, r *http.Request) {
		markers, err := cluster.DecodeMarkers(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := tracker.Insert(r.Context(), markers...); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, http.StatusOK, newClusterResponse(tracker.Result()))
	})

	mux.HandleFunc("DELETE /markers", func(w http.ResponseWriter, r *http.Request) {
		if err := tracker.Reset(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /viewport", func(w http.ResponseWriter, r *http.Request) {
		var req viewportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("decoding viewport: %v", err), http.StatusBadRequest)
			return
		}
		v := cluster.NewViewport(req.TopLeft, req.BottomRight)
		if !v.Valid() {
			http.Error(w, cluster.ErrInvalidViewport.Error(), http.StatusBadRequest)
			return
		}
		if err := tracker.SetView(r.Context(), v, req.Zoom); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, http.StatusOK, newClusterResponse(tracker.Result()))
	})

	mux.HandleFunc("POST /timeline", func(w http.ResponseWriter, r *http.Request) {
		var tl *cluster.YearRange
		if err := json.NewDecoder(r.Body).Decode(&tl); err != nil {
			http.Error(w, fmt.Sprintf("decoding timeline: %v", err), http.StatusBadRequest)
			return
		}
		if err := tracker.SetTimeline(r.Context(), tl); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, http.StatusOK, newClusterResponse(tracker.Result()))
	})

	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return mux
}

var errBadQuery = errors.New("bad query")

// adhocPass clusters the tracked markers inside the viewport given by the
// north, west, south and east query parameters at the zoom parameter (or
// the tracker's zoom). The tracker itself is left untouched.
func adhocPass(r *http.Request, tracker *cluster.Tracker, engine *cluster.Engine) (*cluster.Result, cluster.Viewport, error) {
	q := r.URL.Query()

	var bounds [4]float64
	for i, key := range []string{"north", "west", "south", "east"} {
		f, err := strconv.ParseFloat(q.Get(key), 64)
		if err != nil {
			return nil, cluster.Viewport{}, fmt.Errorf("%w: %s must be a number", errBadQuery, key)
		}
		bounds[i] = f
	}
	v := cluster.NewViewport(
		cluster.Coordinate{Lat: bounds[0], Lon: bounds[1]},
		cluster.Coordinate{Lat: bounds[2], Lon: bounds[3]},
	)

	zoom := tracker.Zoom()
	if z := q.Get("zoom"); z != "" {
		parsed, err := strconv.Atoi(z)
		if err != nil {
			return nil, cluster.Viewport{}, fmt.Errorf("%w: zoom must be an integer", errBadQuery)
		}
		zoom = parsed
	}

	markers := tracker.Markers()
	if tl := tracker.Timeline(); tl != nil {
		markers = cluster.FilterByYears(markers, *tl)
	}
	for i := range markers {
		markers[i].NativeZoom = zoom
	}

	res, err := engine.Run(r.Context(), cluster.Request{Markers: markers, Viewport: v, Zoom: zoom})
	if err != nil {
		return nil, cluster.Viewport{}, err
	}
	return res, v, nil
}
