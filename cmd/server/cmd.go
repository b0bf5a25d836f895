package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/denkarev/drawconquer/internal/config"
)

const defaultConfigPath = "config/server.yaml"

func newCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DRAWCONQUER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := config.DefaultServer()
	var configPath string

	cmd := &cobra.Command{
		Use:           "drawconquer",
		Short:         "Matchmaker and game server for the draw-and-conquer tile game.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			// Explicitly set flags win over the config file.
			overrideChanged(cmd.Flags(), &cfg, &flags)

			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&configPath, "config", defaultConfigPath, "path to config file (env: DRAWCONQUER_CONFIG)")
	fs.StringVarP(&flags.BindAddress, "bind", "b", flags.BindAddress, "address to bind to (env: DRAWCONQUER_BIND)")
	fs.IntVar(&flags.MatchmakerPort, "matchmaker-port", flags.MatchmakerPort, "port for the matchmaker server (env: DRAWCONQUER_MATCHMAKER_PORT)")
	fs.IntVar(&flags.GamePort, "game-port", flags.GamePort, "port for the game server (env: DRAWCONQUER_GAME_PORT)")
	fs.IntVar(&flags.EchoPort, "echo-port", flags.EchoPort, "port for the echo server, 0 to disable (env: DRAWCONQUER_ECHO_PORT)")
	fs.IntVar(&flags.LobbySize, "lobby-size", flags.LobbySize, "players per game session (env: DRAWCONQUER_LOBBY_SIZE)")
	fs.IntVar(&flags.HeartbeatTimeout, "heartbeat-timeout", flags.HeartbeatTimeout, "queue heartbeat timeout in seconds (env: DRAWCONQUER_HEARTBEAT_TIMEOUT)")
	fs.IntVar(&flags.NumTiles, "num-tiles", flags.NumTiles, "number of tiles on the board (env: DRAWCONQUER_NUM_TILES)")
	fs.IntVar(&flags.ColourSelectionTimeout, "colour-selection-timeout", flags.ColourSelectionTimeout, "colour selection timeout in seconds (env: DRAWCONQUER_COLOUR_SELECTION_TIMEOUT)")
	fs.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "log level: debug, info, warn, error (env: DRAWCONQUER_LOG_LEVEL)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}

// overrideChanged copies flag values the user actually set onto the
// file-loaded config.
func overrideChanged(fs *pflag.FlagSet, cfg *config.Server, flags *config.Server) {
	set := map[string]func(){
		"bind":                     func() { cfg.BindAddress = flags.BindAddress },
		"matchmaker-port":          func() { cfg.MatchmakerPort = flags.MatchmakerPort },
		"game-port":                func() { cfg.GamePort = flags.GamePort },
		"echo-port":                func() { cfg.EchoPort = flags.EchoPort },
		"lobby-size":               func() { cfg.LobbySize = flags.LobbySize },
		"heartbeat-timeout":        func() { cfg.HeartbeatTimeout = flags.HeartbeatTimeout },
		"num-tiles":                func() { cfg.NumTiles = flags.NumTiles },
		"colour-selection-timeout": func() { cfg.ColourSelectionTimeout = flags.ColourSelectionTimeout },
		"log-level":                func() { cfg.LogLevel = flags.LogLevel },
	}
	for name, apply := range set {
		if fs.Changed(name) {
			apply()
		}
	}
}
