package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRoomsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List the relay's rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			endpoint, err := restURL(v.GetString("client.server_url"), "/api/rooms")
			if err != nil {
				return err
			}
			rooms, err := fetchRooms(cmd, endpoint)
			if err != nil {
				return err
			}
			p := printer{out: cmd.OutOrStdout()}
			p.block(TitleStyle.Render("Rooms"))
			p.block(RoomsView(rooms))
			return nil
		},
	}
}

func fetchRooms(cmd *cobra.Command, endpoint string) ([]core.RoomInfo, error) {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Timeout: 10 * time.Second}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list rooms: %s", resp.Status)
	}
	var body struct {
		Rooms []core.RoomInfo `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return body.Rooms, nil
}

// restURL turns the channel URL into the HTTP URL of path on the same host.
func restURL(channel, path string) (string, error) {
	u, err := url.Parse(channel)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	u.Path = path
	u.RawQuery = ""
	return u.String(), nil
}
