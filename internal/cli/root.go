// Package cli is the headless participant client.
package cli

import (
	"context"
	"os"

	"github.com/dkeye/Mesh/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// NewRootCommand builds the mesh command tree on top of v.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "mesh",
		Short: "Headless participant for Mesh video rooms",
		Long: `mesh joins a Mesh room from the terminal. It connects to every other
participant over WebRTC, sends a silent audio track and relays chat.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if configFile != "" {
				config.ReadFile(v, configFile)
			}
			zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()})
			zerolog.SetGlobalLevel(config.ParseLevel(v.GetString("client.log_level")))
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (yaml)")
	pf.String("server", "", "relay channel URL, e.g. ws://localhost:8080/api/ws/signal")
	pf.String("log-level", "", "client log level")
	bindFlags(v, pf, map[string]string{
		"server":    "client.server_url",
		"log-level": "client.log_level",
	})

	root.AddCommand(newJoinCommand(v), newRoomsCommand(v))
	return root
}

// bindFlags maps flag names to viper keys so flags win over file and env.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if f := fs.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// Execute runs the client until it finishes or the process is interrupted.
func Execute(ctx context.Context) {
	v := config.New()
	root := NewRootCommand(v)
	if err := root.ExecuteContext(ctx); err != nil {
		printer{out: os.Stderr}.err(err)
		os.Exit(1)
	}
}
