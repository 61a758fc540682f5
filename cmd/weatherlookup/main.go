package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"
)

// errReported means the failure was already rendered; only the exit code remains.
var errReported = errors.New("operation failed")

// Globals are flags shared by every command. Values left empty fall back to
// config/{ENV_NAME}.yaml.
type Globals struct {
	APIKey    string `name:"api-key" env:"WEATHER_API_KEY" help:"Provider API key."`
	Provider  string `help:"Weather provider (weatherapi or openweather)." enum:",weatherapi,openweather" default:""`
	Store     string `help:"Persistence backend (memory, sqlite or memcached)." enum:",memory,sqlite,memcached" default:""`
	Output    string `short:"o" help:"Output format." enum:"text,json" default:"text"`
	MQTT      bool   `name:"mqtt" help:"Also publish emissions to the configured MQTT broker."`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)."`
	ConfigDir string `name:"config-dir" help:"Directory holding {ENV_NAME}.yaml and secrets.yaml." default:"config" type:"path"`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Serve       ServeCmd       `cmd:"" help:"Run the HTTP JSON API."`
	Query       QueryCmd       `cmd:"" help:"Look up weather for a city."`
	Coords      CoordsCmd      `cmd:"" help:"Look up weather for a latitude/longitude pair."`
	Locate      LocateCmd      `cmd:"" help:"Look up weather for the current position."`
	Search      SearchCmd      `cmd:"" help:"Suggest locations for partial text."`
	Settings    SettingsCmd    `cmd:"" help:"Show or change display settings."`
	Watch       WatchCmd       `cmd:"" help:"Query once, then refresh periodically."`
	Interactive InteractiveCmd `cmd:"" help:"Line-oriented session with debounced suggestions."`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("weatherlookup"),
		kong.Description("Weather lookup with cached fallback."),
		kong.UsageOnError(),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	err := kctx.Run(&cli.Globals)
	if errors.Is(err, errReported) {
		stop()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "weatherlookup: %v\n", err)
		stop()
		os.Exit(1)
	}
}
