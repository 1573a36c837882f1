package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile  string
	MarkersFile string
	Bounds      string
	Zoom        int
	OutputFile  string
	Format      string
	ClusterOnce bool
	HttpPort    int
	HttpMode    bool
	MqttMode    bool
}

// Runner is the set of entry points selected by the command line
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunCluster() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run parses args and dispatches to app
func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("photocluster", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.MarkersFile, "markers", "", "JSON file of markers to cluster (or to preload in service mode)")
	fs.StringVar(&opts.Bounds, "bounds", "", "Viewport as north,west,south,east (default: bounding box of the markers)")
	fs.IntVar(&opts.Zoom, "zoom", -1, "Map zoom level (default: cluster.defaultZoom from config)")
	fs.StringVar(&opts.OutputFile, "output", "-", "Output file for --cluster mode, - for stdout")
	fs.StringVar(&opts.Format, "format", "json", "Output format for --cluster mode: json, geojson, svg, png")
	fs.BoolVar(&opts.ClusterOnce, "cluster", false, "Cluster the marker file once and exit")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (default: http.port from config)")
	fs.BoolVar(&opts.HttpMode, "http", true, "Serve the HTTP API in service mode")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Connect to MQTT in service mode")

	if err := fs.Parse(args); err != nil {
		return err
	}

	app.ApplyOptions(opts)

	if opts.ClusterOnce {
		if opts.MarkersFile == "" {
			return fmt.Errorf("--cluster requires --markers")
		}
		return app.RunCluster()
	}

	fmt.Fprintf(out, "photocluster version: %s\n", Version)
	fmt.Fprintln(out, "photocluster service starting...")
	return app.RunService()
}
