package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kwv/photocluster/cluster"
	"github.com/prometheus/client_golang/prometheus"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

var testViewport = cluster.NewViewport(
	cluster.Coordinate{Lat: 55.81, Lon: 37.59},
	cluster.Coordinate{Lat: 55.74, Lon: 37.71},
)

func testMarkers() []cluster.Marker {
	return []cluster.Marker{
		{ID: 1, Coordinate: cluster.Coordinate{Lat: 55.7500, Lon: 37.6000}, Year: 1990},
		{ID: 2, Coordinate: cluster.Coordinate{Lat: 55.7501, Lon: 37.6001}, Year: 2005},
		{ID: 3, Coordinate: cluster.Coordinate{Lat: 55.8000, Lon: 37.7000}, Year: 1950},
	}
}

// testServer returns a handler over a tracker, optionally populated with
// the test markers.
func testServer(t *testing.T, populated bool) (http.Handler, *cluster.Tracker) {
	t.Helper()
	registry := prometheus.NewRegistry()
	engine := cluster.NewEngine(cluster.WithMetrics(cluster.NewMetrics(registry)))
	tracker := cluster.NewTracker(engine, cluster.WithInitialZoom(13))

	if populated {
		ctx := context.Background()
		if err := tracker.SetViewport(ctx, testViewport); err != nil {
			t.Fatalf("SetViewport: %v", err)
		}
		if err := tracker.Insert(ctx, testMarkers()...); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	return newHTTPServer(tracker, engine, registry, nil), tracker
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

type clustersBody struct {
	PassID string                `json:"passId"`
	Zoom   int                   `json:"zoom"`
	Gated  bool                  `json:"gated"`
	Nodes  []cluster.NodeSummary `json:"nodes"`
}

func decodeClusters(t *testing.T, w *httptest.ResponseRecorder) clustersBody {
	t.Helper()
	var body clustersBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v\n%s", err, w.Body.String())
	}
	return body
}

// ---------------------------------------------------------------------------
// read endpoints
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	h, _ := testServer(t, true)
	w := do(h, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var status struct {
		Status     string `json:"status"`
		HasMarkers bool   `json:"hasMarkers"`
		Markers    int    `json:"markers"`
		Zoom       int    `json:"zoom"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "ok" || !status.HasMarkers || status.Markers != 3 || status.Zoom != 13 {
		t.Errorf("unexpected health: %+v", status)
	}
}

func TestClusters_NoPass(t *testing.T) {
	h, _ := testServer(t, false)
	for _, path := range []string{"/clusters", "/clusters.geojson", "/preview.svg", "/preview.png"} {
		if w := do(h, http.MethodGet, path, ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, w.Code)
		}
	}
}

func TestClusters_TrackerPass(t *testing.T) {
	h, tracker := testServer(t, true)
	w := do(h, http.MethodGet, "/clusters", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	body := decodeClusters(t, w)
	if body.PassID != tracker.Result().PassID {
		t.Errorf("passId = %s, want the tracker's %s", body.PassID, tracker.Result().PassID)
	}
	if len(body.Nodes) != 2 || body.Nodes[0].Count != 2 {
		t.Errorf("unexpected nodes: %+v", body.Nodes)
	}
}

func TestClusters_AdhocPass(t *testing.T) {
	h, tracker := testServer(t, true)
	before := tracker.Result().PassID

	// at zoom 3 every photo lands in one cluster
	w := do(h, http.MethodGet, "/clusters?north=56&west=37&south=55.5&east=38&zoom=3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := decodeClusters(t, w)
	if body.Zoom != 3 || len(body.Nodes) != 1 || body.Nodes[0].Count != 3 {
		t.Errorf("unexpected ad hoc pass: %+v", body)
	}
	if tracker.Result().PassID != before || tracker.Zoom() != 13 {
		t.Error("ad hoc pass must not change tracker state")
	}
}

func TestClusters_AdhocBadQuery(t *testing.T) {
	h, _ := testServer(t, true)
	tests := []string{
		"/clusters?north=56",
		"/clusters?north=56&west=37&south=55.5&east=38&zoom=high",
		"/clusters?north=95&west=37&south=55.5&east=38",
	}
	for _, target := range tests {
		if w := do(h, http.MethodGet, target, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, w.Code)
		}
	}
}

func TestClustersGeoJSON(t *testing.T) {
	h, _ := testServer(t, true)
	w := do(h, http.MethodGet, "/clusters.geojson", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %s", ct)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Errorf("unexpected collection: %+v", fc)
	}
	if fc.Features[0].Properties["cluster"] != true {
		t.Errorf("first feature should be a cluster: %+v", fc.Features[0].Properties)
	}
}

func TestDecluster(t *testing.T) {
	h, tracker := testServer(t, true)

	w := do(h, http.MethodGet, "/decluster?id=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want, _ := tracker.DeclusterZoom(1)
	if got["zoom"] != want || got["zoom"] <= 13 {
		t.Errorf("zoom = %d, want %d (> 13)", got["zoom"], want)
	}

	if w := do(h, http.MethodGet, "/decluster?id=99", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", w.Code)
	}
	if w := do(h, http.MethodGet, "/decluster?id=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", w.Code)
	}
}

func TestNearest(t *testing.T) {
	h, _ := testServer(t, true)

	w := do(h, http.MethodGet, "/nearest?lat=55.8&lon=37.7", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var nearby []cluster.NearbyMarker
	if err := json.Unmarshal(w.Body.Bytes(), &nearby); err != nil {
		t.Fatal(err)
	}
	if len(nearby) != 3 || nearby[0].Marker.ID != 3 {
		t.Errorf("unexpected nearest: %+v", nearby)
	}

	if w := do(h, http.MethodGet, "/nearest?lat=abc&lon=1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad lat: status = %d, want 400", w.Code)
	}
}

func TestPreview(t *testing.T) {
	h, _ := testServer(t, true)

	w := do(h, http.MethodGet, "/preview.svg", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<svg") {
		t.Errorf("svg preview: status %d", w.Code)
	}

	for _, target := range []string{"/preview.png", "/preview.png?renderer=vector"} {
		w = do(h, http.MethodGet, target, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", target, w.Code)
		}
		if _, err := png.Decode(bytes.NewReader(w.Body.Bytes())); err != nil {
			t.Errorf("%s: invalid PNG: %v", target, err)
		}
	}
}

func TestMetrics(t *testing.T) {
	h, _ := testServer(t, true)
	w := do(h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "photocluster_passes_total") {
		t.Errorf("expected pass counter in metrics output")
	}
}

// ---------------------------------------------------------------------------
// write endpoints
// ---------------------------------------------------------------------------

func TestPostMarkers(t *testing.T) {
	h, tracker := testServer(t, false)
	if w := do(h, http.MethodPost, "/viewport", `{"topLeft":{"lat":55.81,"lon":37.59},"bottomRight":{"lat":55.74,"lon":37.71}}`); w.Code != http.StatusOK {
		t.Fatalf("viewport: status = %d: %s", w.Code, w.Body.String())
	}

	data, _ := json.Marshal(testMarkers())
	w := do(h, http.MethodPost, "/markers", string(data))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if body := decodeClusters(t, w); len(body.Nodes) != 2 {
		t.Errorf("got %d nodes, want 2", len(body.Nodes))
	}
	if len(tracker.Markers()) != 3 {
		t.Errorf("tracker holds %d markers, want 3", len(tracker.Markers()))
	}

	if w := do(h, http.MethodPost, "/markers", `{"id":1}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d, want 400", w.Code)
	}

	if w := do(h, http.MethodDelete, "/markers", ""); w.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", w.Code)
	}
	if tracker.HasMarkers() {
		t.Error("markers should be cleared")
	}
}

func TestPostViewport(t *testing.T) {
	h, tracker := testServer(t, true)
	passes := 0
	tracker.OnUpdate(func(*cluster.Result) { passes++ })

	w := do(h, http.MethodPost, "/viewport", `{"topLeft":{"lat":56,"lon":37},"bottomRight":{"lat":55.5,"lon":38},"zoom":10}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if passes != 1 {
		t.Errorf("viewport with zoom ran %d passes, want 1", passes)
	}
	if res := tracker.Result(); res == nil || res.Zoom != 10 {
		t.Errorf("result should be computed at zoom 10, got %+v", res)
	}
	if tracker.Zoom() != 10 {
		t.Errorf("zoom = %d, want 10", tracker.Zoom())
	}
	if tracker.Viewport().TopLeft != (cluster.Coordinate{Lat: 56, Lon: 37}) {
		t.Errorf("viewport not applied: %+v", tracker.Viewport())
	}

	if w := do(h, http.MethodPost, "/viewport", `{"topLeft":{"lat":91,"lon":0},"bottomRight":{"lat":0,"lon":1}}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid viewport: status = %d, want 400", w.Code)
	}
	if w := do(h, http.MethodPost, "/viewport", `nope`); w.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d, want 400", w.Code)
	}
}

func TestPostTimeline(t *testing.T) {
	h, tracker := testServer(t, true)

	w := do(h, http.MethodPost, "/timeline", `{"min":1980,"max":2000}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := decodeClusters(t, w)
	if len(body.Nodes) != 1 || body.Nodes[0].IDs[0] != 1 {
		t.Errorf("expected only the 1990 photo, got %+v", body.Nodes)
	}

	w = do(h, http.MethodPost, "/timeline", `null`)
	if w.Code != http.StatusOK {
		t.Fatalf("clear: status = %d", w.Code)
	}
	if tracker.Timeline() != nil {
		t.Error("timeline should be cleared")
	}

	if w := do(h, http.MethodGet, "/timeline", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /timeline: status = %d, want 405", w.Code)
	}
}
