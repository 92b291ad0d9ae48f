package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-mapblock/internal/logging"
	"github.com/joeblew999/plat-mapblock/internal/server"
)

// Options defines all CLI flags and env vars for the map block server.
// Flags: --host, --port, --data-dir, --store, --provider, --places, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_STORE, ...
type Options struct {
	Host       string        `doc:"Host to bind to" default:"0.0.0.0"`
	Port       int           `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir    string        `doc:"Directory for block settings and assets" default:".data"`
	Store      string        `doc:"Settings store backend" enum:"file,duckdb" default:"file"`
	Provider   string        `doc:"Map provider" enum:"google,gazetteer" default:"google"`
	Places     string        `doc:"YAML place list for the gazetteer provider"`
	Language   string        `doc:"Language of Google place suggestions" default:"en"`
	Debounce   time.Duration `doc:"Debounce window of marker edits" default:"200ms"`
	LoadWait   time.Duration `doc:"How long requests wait for a map to load" default:"5s"`
	Templates  string        `doc:"Reload HTML fragments from this directory on each page (development)"`
	Extensions string        `doc:"Comma separated DuckDB extensions loaded by the duckdb store (e.g. json)"`
	LogLevel   string        `doc:"Log level (trace, debug, info, warn, error)" default:"info"`
	LogFormat  string        `doc:"Log format" enum:"console,json" default:"console"`
}

func newServer(opts *Options) (*server.Server, error) {
	return server.New(server.Config{
		Host:        opts.Host,
		Port:        fmt.Sprintf("%d", opts.Port),
		DataDir:     opts.DataDir,
		Store:       opts.Store,
		Provider:    opts.Provider,
		PlacesFile:  opts.Places,
		Language:    opts.Language,
		Delay:       opts.Debounce,
		LoadTimeout: opts.LoadWait,
		TemplateDir: opts.Templates,
		Extensions:  splitList(opts.Extensions),
	})
}

// splitList splits a comma separated flag value, dropping blanks.
func splitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(v string, _ int) string {
		return strings.TrimSpace(v)
	}))
}

func main() {
	// A missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		logging.Setup(logging.Options{Level: opts.LogLevel, Format: opts.LogFormat})

		var httpServer *http.Server

		hooks.OnStart(func() {
			srv, err := newServer(opts)
			if err != nil {
				log.Fatal().Err(err).Msg("Starting server failed")
			}
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			log.Info().
				Str("server", baseURL).
				Str("data", opts.DataDir).
				Str("store", opts.Store).
				Str("provider", opts.Provider).
				Str("docs", baseURL+"/docs").
				Str("openapi", baseURL+"/openapi.json").
				Msg("plat-mapblock server starting")

			httpServer = &http.Server{Addr: addr, Handler: srv}
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Server error")
			}
		})

		hooks.OnStop(func() {
			if httpServer == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("Shutdown failed")
			}
		})
	})

	cli.Root().Use = "mapblock"
	cli.Root().Short = "Map content blocks with markers, place search and a live editor"
	cli.Root().Version = "1.0.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			logging.Setup(logging.Options{Level: "warn", Format: opts.LogFormat})
			srv, err := newServer(opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
				os.Exit(1)
			}
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
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
