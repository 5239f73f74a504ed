// Command arangoctl runs queries, exports and request batches against a
// server from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/dan-strohschein/arangodb-drivers/client"
)

// GlobalOptions apply to every subcommand.
type GlobalOptions struct {
	Config   string `short:"c" long:"config" description:"YAML, JSON or TOML connection config file"`
	EnvFile  string `long:"env-file" default:".env" description:"dotenv file with ARANGO_* variables; ignored when missing"`
	Endpoint string `short:"e" long:"endpoint" description:"server URL (overrides config)"`
	Database string `short:"d" long:"database" description:"database name (overrides config)"`
	Debug    bool   `long:"debug" description:"verbose error output"`
	LogLevel string `long:"log-level" default:"WARN" description:"DEBUG, INFO, WARN or ERROR"`
	Logrus   bool   `long:"logrus" description:"log through logrus text output instead of JSON lines"`
	NoColor  bool   `long:"no-color" description:"disable colored output"`
	Timeout  int    `long:"timeout" description:"request timeout in milliseconds (overrides config)"`
}

var globalOpts GlobalOptions

func main() {
	parser := flags.NewParser(&globalOpts, flags.HelpFlag|flags.PassDoubleDash)
	parser.ShortDescription = "ArangoDB command line client"
	parser.LongDescription = "Run queries, export collections and send request batches.\n\n" +
		"Connection settings come from --config, ARANGO_* environment variables\n" +
		"(optionally loaded from --env-file) and the flags below, in that order."

	parser.AddCommand("query", "Run a query", "Execute a query and print every row.", &QueryCommand{})
	parser.AddCommand("export", "Export a collection", "Stream all documents of a collection.", &ExportCommand{})
	parser.AddCommand("batch", "Send a request batch", "Capture requests from a JSON lines file and send them in one batch.", &BatchCommand{})
	parser.AddCommand("version", "Print versions", "Print client and server versions.", &VersionCommand{})

	if _, err := parser.Parse(); err != nil {
		if fe, ok := err.(*flags.Error); ok {
			if fe.Type == flags.ErrHelp {
				fmt.Fprintln(stdout, fe.Message)
				os.Exit(0)
			}
			printError(fe.Message)
		}
		os.Exit(1)
	}
}

// connect builds a connection from the global options.
func connect() (*client.Connection, error) {
	if globalOpts.NoColor {
		colorsEnabled = false
	}
	if globalOpts.EnvFile != "" {
		if err := godotenv.Load(globalOpts.EnvFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", globalOpts.EnvFile, err)
		}
	}

	var files []string
	if globalOpts.Config != "" {
		files = append(files, globalOpts.Config)
	}
	opts, err := client.LoadOptions(files...)
	if err != nil {
		return nil, err
	}
	if globalOpts.Endpoint != "" {
		opts.Endpoint = globalOpts.Endpoint
	}
	if globalOpts.Database != "" {
		opts.Database = globalOpts.Database
	}
	if globalOpts.Timeout > 0 {
		opts.TimeoutMs = globalOpts.Timeout
	}
	if globalOpts.Debug {
		opts.DebugMode = true
	}
	opts.LogLevel = globalOpts.LogLevel
	opts.Logger = newLogger(globalOpts.LogLevel, globalOpts.Logrus)
	if opts.Headers == nil {
		opts.Headers = map[string]string{}
	}
	opts.Headers["User-Agent"] = client.UserAgent()

	return client.NewConnection(&opts)
}

func newLogger(level string, useLogrus bool) client.Logger {
	if !useLogrus {
		return client.NewLogger(level, os.Stderr)
	}
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{DisableColors: !colorsEnabled, FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		l.SetLevel(lvl)
	}
	return client.NewLogrusLogger(l)
}

// commandContext is cancelled on interrupt or after the connection timeout.
func commandContext(conn *client.Connection) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	opts := conn.Options()
	timeout := opts.Timeout()
	if timeout <= 0 {
		return ctx, stop
	}
	// Commands page through whole results, so allow more than one request's worth.
	tctx, cancel := context.WithTimeout(ctx, 10*timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

// report prints err in the connection's format and returns it so main
// exits non-zero.
func report(conn *client.Connection, err error) error {
	if err == nil {
		return nil
	}
	if conn != nil {
		printError(conn.FormatError(err))
	} else {
		printError(err.Error())
	}
	return err
}

func elapsedString(d time.Duration) string {
	return d.Round(time.Microsecond).String()
}
