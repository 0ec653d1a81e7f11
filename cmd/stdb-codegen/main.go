// Command stdb-codegen fetches a database schema and emits typed Go
// accessors for its tables.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mickamy/stdb-go/codegen"
	"github.com/mickamy/stdb-go/httpapi"
	"github.com/mickamy/stdb-go/schema"
)

var version = "dev"

func main() {
	fs := flag.NewFlagSet("stdb-codegen", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "stdb-codegen — Generate typed table accessors from a database schema\n\nUsage:\n  stdb-codegen [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	host := fs.String("host", "localhost:3000", "server host:port")
	database := fs.String("database", "", "database name (required unless -stdin)")
	output := fs.String("output", "-", "output file path, or - for stdout")
	stdin := fs.Bool("stdin", false, "read the schema JSON from standard input instead of fetching")
	pkg := fs.String("package", "tables", "package name of the generated source")
	showVersion := fs.Bool("version", false, "show version and exit")

	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("stdb-codegen %s\n", version)
		return
	}

	if !*stdin && *database == "" {
		fs.Usage()
		os.Exit(1)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := run(log, *host, *database, *output, *pkg, *stdin); err != nil {
		log.Error().Err(err).Msg("codegen failed")
		os.Exit(1)
	}
}

func run(log zerolog.Logger, host, database, output, pkg string, stdin bool) error {
	var s *schema.Schema
	var err error
	if stdin {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		if s, err = schema.Parse(data); err != nil {
			return err
		}
	} else {
		api := httpapi.New(host, httpapi.WithLogger(log))
		if s, err = api.Schema(database); err != nil {
			return err
		}
		log.Info().Str("database", database).Int("tables", len(s.Tables)).Msg("schema fetched")
	}

	src, err := codegen.Generate(s, pkg)
	if err != nil {
		return err
	}

	if output == "-" {
		_, err = os.Stdout.Write(src)
		return err
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(output, src, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	log.Info().Str("path", output).Msg("accessors written")
	return nil
}
