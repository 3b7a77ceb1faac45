// Package main emits the OpenAPI document for the Rolewatch API. The route
// table is registered against stub handlers, so generation needs no
// database, queue, or live adapters and stays in sync with what the server
// serves.
//
// Usage:
//
//	go run ./cmd/rolewatch-openapi > openapi.json
//	go run ./cmd/rolewatch-openapi -yaml > openapi.yaml
//	go run ./cmd/rolewatch-openapi -output openapi.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/rolewatch/rolewatch-api/internal/http/routes"
	"github.com/rolewatch/rolewatch-api/internal/version"
)

func main() {
	var (
		outputFile = flag.String("output", "", "Output file path (default: stdout)")
		asYAML     = flag.Bool("yaml", false, "Output as YAML instead of JSON")
		baseURL    = flag.String("base-url", "https://api.rolewatch.dev", "Base URL for the API server")
		showVer    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println(version.Get().Short())
		return
	}

	if err := run(*baseURL, *outputFile, *asYAML); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(baseURL, outputFile string, asYAML bool) error {
	// The router never serves; huma just needs one to register against.
	api := humachi.New(chi.NewRouter(), routes.NewHumaConfig(baseURL))
	routes.Register(api, routes.StubHandlers())

	data, err := render(api.OpenAPI(), asYAML)
	if err != nil {
		return fmt.Errorf("marshal OpenAPI document: %w", err)
	}

	if outputFile == "" {
		fmt.Print(string(data))
		return nil
	}
	if err := os.WriteFile(outputFile, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outputFile, err)
	}
	fmt.Fprintf(os.Stderr, "OpenAPI document written to %s\n", outputFile)
	return nil
}

func render(spec *huma.OpenAPI, asYAML bool) ([]byte, error) {
	if asYAML {
		return yaml.Marshal(spec)
	}
	return json.MarshalIndent(spec, "", "  ")
}
