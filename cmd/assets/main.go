package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-assets/internal/logger"
	"github.com/joeblew999/plat-assets/internal/server"
)

// Options defines all CLI flags and env vars for the asset server.
// Flags: --host, --port, --data-dir, --web-dir, --map-api-key, --map-style,
// --backend-url, --log-level, --log-format
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, ...
type Options struct {
	Host       string `doc:"Host to bind to" default:"0.0.0.0"`
	Port       int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir    string `doc:"Directory for the asset database" default:".data"`
	WebDir     string `doc:"Path to web/ directory" default:"web"`
	MapAPIKey  string `doc:"Map provider API key; the map panel is disabled without it"`
	MapStyle   string `doc:"Map style URL (default: provider light style)"`
	BackendURL string `doc:"Remote asset registry for GIS pages (default: local database)"`
	LogLevel   string `doc:"Log level: debug, info, warn, error" default:"info"`
	LogFormat  string `doc:"Log format: text or json" default:"text"`
}

func newServer(opts *Options, log *slog.Logger) (*server.Server, error) {
	return server.New(server.Config{
		Host:       opts.Host,
		Port:       fmt.Sprintf("%d", opts.Port),
		DataDir:    opts.DataDir,
		WebDir:     opts.WebDir,
		MapAPIKey:  opts.MapAPIKey,
		MapStyle:   opts.MapStyle,
		BackendURL: opts.BackendURL,
		Logger:     log,
	})
}

// specYAML converts through JSON so huma's custom marshalers apply.
func specYAML(spec any) ([]byte, error) {
	b, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

func main() {
	_ = godotenv.Load(".env")

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		log := logger.New(logger.Options{Level: opts.LogLevel, Format: opts.LogFormat})
		slog.SetDefault(log)

		var (
			srv     *server.Server
			httpSrv *http.Server
		)

		hooks.OnStart(func() {
			var err error
			srv, err = newServer(opts, log)
			if err != nil {
				log.Error("server setup failed", "error", err)
				os.Exit(1)
			}

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)
			log.Info("plat-assets server starting",
				"server", baseURL,
				"data", opts.DataDir,
				"gis", baseURL+"/gis",
				"docs", baseURL+"/docs",
				"map_configured", opts.MapAPIKey != "",
			)

			httpSrv = &http.Server{
				Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
				Handler:           srv,
				ReadHeaderTimeout: 10 * time.Second,
			}
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("server error", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			if httpSrv != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				httpSrv.Shutdown(ctx)
			}
			if srv != nil {
				srv.Close()
			}
		})
	})

	cli.Root().Use = "assets"
	cli.Root().Short = "Geospatial asset registry with a live GIS page"
	cli.Root().Version = "1.0.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			log := logger.New(logger.Options{Level: "error", Format: opts.LogFormat})
			srv, err := server.New(server.Config{
				Host:     opts.Host,
				Port:     fmt.Sprintf("%d", opts.Port),
				InMemory: true,
				Logger:   log,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error building server: %v\n", err)
				os.Exit(1)
			}
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = specYAML(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	cli.Run()
}
