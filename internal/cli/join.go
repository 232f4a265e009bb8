package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dkeye/Mesh/internal/adapters/rtc"
	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/session"
	"github.com/dkeye/Mesh/internal/signalclient"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var errConnectionLost = errors.New("connection to relay lost")

func newJoinCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join <room>",
		Short: "Join a room as a headless participant",
		Long: `Join a room, connect to every participant and relay chat.

Lines typed on stdin are sent as chat. Commands:
  /chat <text>   send a chat message
  /kick <id>     remove a participant (room admin only)
  /who           list participants
  /leave         leave the room and exit

Examples:
  mesh join standup --name Alice
  mesh join standup --name Bob --server wss://mesh.example.org/api/ws/signal`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd.Context(), v, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.String("name", "", "display name")
	fs.StringSlice("ice", nil, "STUN server URLs")
	fs.String("turn-url", "", "TURN server URL")
	fs.String("turn-user", "", "TURN username")
	fs.String("turn-pass", "", "TURN password")
	bindFlags(v, fs, map[string]string{
		"name":      "client.name",
		"ice":       "client.ice_servers",
		"turn-url":  "client.turn.url",
		"turn-user": "client.turn.username",
		"turn-pass": "client.turn.password",
	})
	return cmd
}

func runJoin(ctx context.Context, v *viper.Viper, room string, in io.Reader, out io.Writer) error {
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	cc := cfg.Client
	if strings.TrimSpace(cc.Name) == "" {
		return errors.New("a display name is required (--name)")
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	sc, err := signalclient.Dial(runCtx, signalclient.Config{URL: cc.ServerURL})
	if err != nil {
		return err
	}
	defer sc.Close()

	api, err := rtc.NewAPI(log.Logger)
	if err != nil {
		return err
	}
	ice := rtc.ICEConfig{
		STUN: cc.ICEServers,
		TURN: rtc.TURNConfig{URL: cc.TURN.URL, Username: cc.TURN.Username, Password: cc.TURN.Password},
	}
	sink := rtc.NewDrainSink()
	coord := session.New(session.Config{
		Transport: sc,
		Factory:   &rtc.Factory{API: api, Config: ice.WebRTCConfig()},
		Media:     &rtc.SilenceSource{},
		Sink:      sink,
	})
	defer coord.Close()

	p := printer{out: out}
	entered := make(chan struct{}, 1)
	gone := make(chan string, 1)
	watchEvents(coord.Bus(), p, entered, gone)

	if err := coord.JoinRoom(room, cc.Name); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		coord.Run(gctx, sc.Incoming())
		if gctx.Err() == nil {
			return errConnectionLost
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-entered:
		case <-gctx.Done():
			return nil
		}
		return coord.AnnounceStreamReady(gctx)
	})
	g.Go(func() error {
		k := console{c: coord, p: p, stats: sink.Stats}
		if k.run(gctx, in) {
			stop()
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gone:
			stop()
		case <-gctx.Done():
		}
		return nil
	})
	return g.Wait()
}
