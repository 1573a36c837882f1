package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/photocluster/cluster"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *cluster.Config
	Logger     *zap.Logger
	Registry   *prometheus.Registry
	Engine     *cluster.Engine
	Tracker    *cluster.Tracker
	MQTTClient *cluster.MQTTClient
	Publisher  *cluster.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile  string
	MarkersFile string
	Bounds      string
	Zoom        int
	OutputFile  string
	Format      string
	HttpPort    int
	HttpMode    bool
	MqttMode    bool

	// Out receives --cluster output and the service banner
	Out io.Writer
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		ConfigFile: "config.yaml",
		Zoom:       -1,
		Format:     "json",
		OutputFile: "-",
		HttpMode:   true,
		Out:        os.Stdout,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.MarkersFile = opts.MarkersFile
	a.Bounds = opts.Bounds
	a.Zoom = opts.Zoom
	a.OutputFile = opts.OutputFile
	a.Format = opts.Format
	a.HttpPort = opts.HttpPort
	a.HttpMode = opts.HttpMode
	a.MqttMode = opts.MqttMode
}

// setup loads the configuration and builds the logger, metrics registry,
// engine and tracker. A logger already set on the App is kept.
func (a *App) setup() error {
	config, err := cluster.LoadConfigOrDefault(a.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.Config = config

	if a.Logger == nil {
		logger, err := cluster.NewLogger(config.Log)
		if err != nil {
			return err
		}
		a.Logger = logger
	}

	a.Registry = prometheus.NewRegistry()

	engineOpts, err := config.EngineOptions()
	if err != nil {
		return err
	}
	engineOpts = append(engineOpts,
		cluster.WithLogger(a.Logger),
		cluster.WithMetrics(cluster.NewMetrics(a.Registry)))
	a.Engine = cluster.NewEngine(engineOpts...)

	zoom := config.Cluster.DefaultZoom
	if a.Zoom >= 0 {
		zoom = a.Zoom
	}
	trackerOpts := append(config.TrackerOptions(),
		cluster.WithInitialZoom(zoom),
		cluster.WithTrackerLogger(a.Logger))
	a.Tracker = cluster.NewTracker(a.Engine, trackerOpts...)

	if a.HttpPort == 0 {
		a.HttpPort = config.HTTP.Port
	}
	return nil
}

// RunCluster clusters the marker file once and writes the result
func (a *App) RunCluster() error {
	if err := a.setup(); err != nil {
		return err
	}
	defer func() { _ = a.Logger.Sync() }()

	markers, err := cluster.LoadMarkers(a.MarkersFile)
	if err != nil {
		return err
	}
	if tl := a.Config.Tracker.Timeline; tl != nil {
		markers = cluster.FilterByYears(markers, *tl)
	}

	viewport, err := a.viewportFor(markers)
	if err != nil {
		return err
	}

	// every marker is laid out at the requested zoom
	zoom := a.Tracker.Zoom()
	for i := range markers {
		markers[i].NativeZoom = zoom
	}

	result, err := a.Engine.Run(context.Background(), cluster.Request{
		Markers:  markers,
		Viewport: viewport,
		Zoom:     zoom,
	})
	if err != nil {
		return fmt.Errorf("clustering: %w", err)
	}
	a.Logger.Info("clustered markers",
		zap.String("pass_id", result.PassID),
		zap.Int("markers", len(markers)),
		zap.Int("nodes", len(result.Nodes)),
		zap.Int("zoom", zoom))

	if a.OutputFile == "" || a.OutputFile == "-" {
		return writeResult(a.Out, a.Format, result, viewport)
	}

	f, err := os.Create(a.OutputFile)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := writeResult(f, a.Format, result, viewport); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// RunService keeps a tracker live behind HTTP and, optionally, MQTT until
// interrupted.
func (a *App) RunService() error {
	if err := a.setup(); err != nil {
		return err
	}
	defer func() { _ = a.Logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.MqttMode {
		client, err := cluster.InitMQTT(a.Config, a.Tracker, a.Logger)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if client == nil {
			return fmt.Errorf("MQTT broker not configured in %s", a.ConfigFile)
		}
		a.MQTTClient = client
		a.Publisher = cluster.NewPublisher(client.GetClient(), client.TopicPrefix(), a.Logger)
		a.Tracker.OnUpdate(a.publish)
	}

	if err := a.preload(ctx); err != nil {
		return err
	}

	var srv *http.Server
	if a.HttpMode {
		srv = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
			Handler:           newHTTPServer(a.Tracker, a.Engine, a.Registry, a.Logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.Logger.Info("starting HTTP server", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Error("HTTP server error", zap.Error(err))
				stop()
			}
		}()
	}

	a.printServiceInfo()

	<-ctx.Done()

	fmt.Fprintln(a.Out, "\nShutting down service...")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("HTTP shutdown", zap.Error(err))
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Fprintln(a.Out, "Service stopped")
	return nil
}

// preload applies the configured timeline and the optional marker file to
// the tracker.
func (a *App) preload(ctx context.Context) error {
	if tl := a.Config.Tracker.Timeline; tl != nil {
		if err := a.Tracker.SetTimeline(ctx, tl); err != nil {
			a.Logger.Warn("applying configured timeline", zap.Error(err))
		}
	}
	if a.MarkersFile == "" {
		return nil
	}

	markers, err := cluster.LoadMarkers(a.MarkersFile)
	if err != nil {
		return err
	}
	viewport, err := a.viewportFor(markers)
	if err != nil {
		return err
	}
	if err := a.Tracker.SetViewport(ctx, viewport); err != nil {
		return fmt.Errorf("setting initial viewport: %w", err)
	}
	if err := a.Tracker.Insert(ctx, markers...); err != nil {
		return fmt.Errorf("loading markers: %w", err)
	}
	a.Logger.Info("preloaded markers",
		zap.String("file", a.MarkersFile),
		zap.Int("markers", len(a.Tracker.Markers())))
	return nil
}

// publish forwards a pass to MQTT; a missing connection is expected while
// the client is still connecting.
func (a *App) publish(r *cluster.Result) {
	if a.Publisher == nil {
		return
	}
	if err := a.Publisher.PublishResult(r); err != nil {
		if errors.Is(err, cluster.ErrNotConnected) {
			a.Logger.Debug("result not published", zap.Error(err))
			return
		}
		a.Logger.Warn("publishing result", zap.Error(err))
	}
}

// printServiceInfo lists the active endpoints and topics
func (a *App) printServiceInfo() {
	out := a.Out
	fmt.Fprintln(out, "\nService Running")
	fmt.Fprintln(out, "===============")

	if a.MQTTClient != nil {
		prefix := a.MQTTClient.TopicPrefix()
		fmt.Fprintln(out, "\nMQTT:")
		fmt.Fprintf(out, "  Commands:   %s/{viewport,zoom,timeline}/set, %s/markers/{add,remove,reset}\n", prefix, prefix)
		fmt.Fprintf(out, "  Publishing: %s/%s, %s/%s\n", prefix, cluster.TopicNodes, prefix, cluster.TopicDecluster)
	}

	if a.HttpMode {
		fmt.Fprintf(out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(out, "  GET  /health            - Health check")
		fmt.Fprintln(out, "  GET  /clusters          - Current nodes (or an ad hoc pass with north,west,south,east,zoom)")
		fmt.Fprintln(out, "  GET  /clusters.geojson  - Current nodes as a GeoJSON FeatureCollection")
		fmt.Fprintln(out, "  GET  /decluster?id=N    - Decluster zoom of one marker")
		fmt.Fprintln(out, "  GET  /nearest?lat=&lon= - Closest markers to a point")
		fmt.Fprintln(out, "  GET  /preview.svg       - Vector preview of the layout")
		fmt.Fprintln(out, "  GET  /preview.png       - Raster preview of the layout")
		fmt.Fprintln(out, "  GET  /metrics           - Prometheus metrics")
		fmt.Fprintln(out, "  POST /markers           - Add markers; DELETE /markers clears them")
		fmt.Fprintln(out, "  POST /viewport          - Set viewport and zoom")
		fmt.Fprintln(out, "  POST /timeline          - Set or clear the year range")
	}

	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}

// viewportFor returns the --bounds viewport, or the bounding box of markers
// when no bounds were given.
func (a *App) viewportFor(markers []cluster.Marker) (cluster.Viewport, error) {
	if a.Bounds != "" {
		return parseBounds(a.Bounds)
	}
	return boundsOf(markers)
}

// parseBounds parses "north,west,south,east"
func parseBounds(s string) (cluster.Viewport, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return cluster.Viewport{}, fmt.Errorf("bounds %q: want north,west,south,east", s)
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return cluster.Viewport{}, fmt.Errorf("bounds %q: %w", s, err)
		}
		v[i] = f
	}

	viewport := cluster.NewViewport(
		cluster.Coordinate{Lat: v[0], Lon: v[1]},
		cluster.Coordinate{Lat: v[2], Lon: v[3]},
	)
	if !viewport.Valid() {
		return cluster.Viewport{}, fmt.Errorf("bounds %q: %w", s, cluster.ErrInvalidViewport)
	}
	return viewport, nil
}

// boundsOf returns the viewport spanning every valid marker
func boundsOf(markers []cluster.Marker) (cluster.Viewport, error) {
	points := make(orb.MultiPoint, 0, len(markers))
	for _, m := range markers {
		if m.Valid() {
			points = append(points, m.Point())
		}
	}
	if len(points) == 0 {
		return cluster.Viewport{}, fmt.Errorf("no bounds given and no valid markers to derive them from")
	}

	b := points.Bound()
	return cluster.NewViewport(
		cluster.Coordinate{Lat: b.Max.Lat(), Lon: b.Min.Lon()},
		cluster.Coordinate{Lat: b.Min.Lat(), Lon: b.Max.Lon()},
	), nil
}

// clusterResponse is the JSON rendering of a pass
type clusterResponse struct {
	*cluster.Result
	Nodes []cluster.NodeSummary `json:"nodes"`
}

func newClusterResponse(r *cluster.Result) clusterResponse {
	return clusterResponse{Result: r, Nodes: cluster.Summarize(r.Nodes, r.Hints)}
}

// writeResult encodes a pass in the requested format
func writeResult(w io.Writer, format string, result *cluster.Result, viewport cluster.Viewport) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newClusterResponse(result))
	case "geojson":
		data, err := cluster.NodesToFeatureCollection(result.Nodes, result.Hints).MarshalJSON()
		if err != nil {
			return fmt.Errorf("encoding GeoJSON: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "svg":
		return cluster.NewPreview(result, viewport).WriteSVG(w)
	case "png":
		return cluster.NewPreview(result, viewport).WritePNG(w)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
