package tool

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
)

// ErrWifiUnavailable is returned by probers on platforms they cannot read.
var ErrWifiUnavailable = errors.New("wifi status unavailable on this system")

// WifiStatus is a snapshot of the wireless adapter.
type WifiStatus struct {
	Enabled        bool
	Connected      bool
	CurrentNetwork string
	SavedNetworks  []string
}

// WifiProber reads the wireless adapter state.
type WifiProber interface {
	Status(ctx context.Context) (WifiStatus, error)
}

// WifiProberFunc adapts a function to WifiProber.
type WifiProberFunc func(ctx context.Context) (WifiStatus, error)

func (f WifiProberFunc) Status(ctx context.Context) (WifiStatus, error) { return f(ctx) }

// NmcliProber reads status from NetworkManager's nmcli.
type NmcliProber struct{}

func (NmcliProber) Status(ctx context.Context) (WifiStatus, error) {
	if _, err := exec.LookPath("nmcli"); err != nil {
		return WifiStatus{}, ErrWifiUnavailable
	}

	radio, err := exec.CommandContext(ctx, "nmcli", "-t", "radio", "wifi").Output()
	if err != nil {
		return WifiStatus{}, fmt.Errorf("nmcli radio: %w", err)
	}
	status := WifiStatus{Enabled: strings.TrimSpace(string(radio)) == "enabled"}
	if !status.Enabled {
		return status, nil
	}

	active, err := exec.CommandContext(ctx, "nmcli", "-t", "-f", "active,ssid", "dev", "wifi").Output()
	if err != nil {
		return WifiStatus{}, fmt.Errorf("nmcli dev wifi: %w", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(active))
	for scanner.Scan() {
		if ssid, ok := strings.CutPrefix(scanner.Text(), "yes:"); ok {
			status.Connected = true
			status.CurrentNetwork = ssid
			break
		}
	}

	saved, err := exec.CommandContext(ctx, "nmcli", "-t", "-f", "name,type", "connection", "show").Output()
	if err == nil {
		scanner = bufio.NewScanner(bytes.NewReader(saved))
		for scanner.Scan() {
			if name, ok := strings.CutSuffix(scanner.Text(), ":802-11-wireless"); ok {
				status.SavedNetworks = append(status.SavedNetworks, name)
			}
		}
	}
	return status, nil
}

// WifiStatusTool renders the wifi widget.
type WifiStatusTool struct {
	prober WifiProber
}

type wifiWidget struct {
	Widget         string   `json:"widget"`
	Enabled        *bool    `json:"enabled,omitempty"`
	Connected      *bool    `json:"connected,omitempty"`
	CurrentNetwork *string  `json:"currentNetwork"`
	SavedNetworks  []string `json:"savedNetworks,omitempty"`
}

// NewWifiStatusTool creates the tool. A nil prober uses nmcli.
func NewWifiStatusTool(prober WifiProber) *WifiStatusTool {
	if prober == nil {
		prober = NmcliProber{}
	}
	return &WifiStatusTool{prober: prober}
}

func (t *WifiStatusTool) ID() string { return "wifi_status" }

func (t *WifiStatusTool) Description() string {
	return "Show whether WiFi is on, which network is connected and the saved networks."
}

func (t *WifiStatusTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *WifiStatusTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	status, err := t.prober.Status(ctx)
	if err != nil {
		// The widget still renders, showing the error.
		return JSONResult("WiFi", struct {
			Widget string `json:"widget"`
			Error  string `json:"error"`
		}{"wifi", err.Error()})
	}

	widget := wifiWidget{
		Widget:        "wifi",
		Enabled:       &status.Enabled,
		Connected:     &status.Connected,
		SavedNetworks: status.SavedNetworks,
	}
	if status.Connected {
		widget.CurrentNetwork = &status.CurrentNetwork
	}
	return JSONResult("WiFi", widget)
}

func (t *WifiStatusTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
