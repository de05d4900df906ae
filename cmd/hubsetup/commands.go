package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hubonboard/hubsetup/internal/attribute"
	"github.com/hubonboard/hubsetup/internal/ble"
	"github.com/hubonboard/hubsetup/internal/config"
	"github.com/hubonboard/hubsetup/internal/discovery"
	"github.com/hubonboard/hubsetup/internal/hubapi"
	"github.com/hubonboard/hubsetup/internal/logging"
	"github.com/hubonboard/hubsetup/internal/session"
	"github.com/hubonboard/hubsetup/internal/ui"
)

// Command flags
var (
	hubRef        string
	scanTimeout   int
	outputFormat  string
	locateAddress string
	locateTimeout int
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(locateCmd)
	rootCmd.AddCommand(hubsCmd)
}

// openRadio powers up the host adapter
func openRadio() (*ble.TinyGoRadio, error) {
	radio := ble.NewTinyGoRadio(attribute.ServiceUUID)
	if err := radio.Enable(); err != nil {
		return nil, fmt.Errorf("bluetooth unavailable: %w", err)
	}
	return radio, nil
}

// findHub scans for the hub named by ref, which may be a radio address, a
// registry nickname or empty for the first hub seen
func findHub(ctx context.Context, radio ble.Radio, reg *config.Registry, ref string, timeout time.Duration) (*discovery.Hub, error) {
	id := ref
	if ref != "" {
		if known, _ := reg.FindHub(ref); known != "" {
			id = known
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return discovery.NewScanner(radio).FindHub(ctx, id)
}

// scanTimeoutFor returns the --timeout flag or the registry preference
func scanTimeoutFor(reg *config.Registry) time.Duration {
	if scanTimeout > 0 {
		return time.Duration(scanTimeout) * time.Second
	}
	return reg.Preferences.ScanDuration()
}

func scanTroubleshooting() []string {
	return []string{
		"Ensure the hub is powered on and in setup mode (status light blinking)",
		"Move closer to the hub; Bluetooth range is a few meters",
		"Check that Bluetooth is enabled on this computer",
		"Try increasing --timeout",
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// scanCmd discovers hubs in setup mode
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for hubs in setup mode",
	Long: `Scan for hubs advertising the setup service over Bluetooth LE.

Every hub is listed once with its radio address and signal strength.
Hubs that were set up before are marked with their registry name.`,
	Example: `  # Scan for 10 seconds (default)
  hubsetup scan

  # Longer scan
  hubsetup scan --timeout 30

  # JSON output for scripting
  hubsetup scan --format json`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 0, "Scan timeout in seconds (default from preferences)")
	scanCmd.Flags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, json)")
}

type scannedHub struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	RSSI  int16  `json:"rssi"`
	Known string `json:"known_as,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	radio, err := openRadio()
	if err != nil {
		return err
	}

	timeout := scanTimeoutFor(reg)
	if outputFormat != "json" {
		fmt.Printf("Scanning for hubs (timeout: %s)...\n\n", timeout)
	}

	hubs, err := discovery.NewScanner(radio).ScanFor(cmd.Context(), timeout)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	found := make([]scannedHub, 0, len(hubs))
	for _, hub := range hubs {
		entry := scannedHub{ID: hub.ID, Name: hub.Name, RSSI: hub.RSSI}
		if known := reg.GetHub(hub.ID); known != nil {
			entry.Known = known.DisplayName(hub.ID)
		}
		found = append(found, entry)
	}

	if outputFormat == "json" {
		return printJSON(found)
	}

	p := ui.NewPrinter(os.Stdout)
	if len(found) == 0 {
		p.PrintError("No hubs found", errors.New("no hub answered within the scan window"), scanTroubleshooting()...)
		return nil
	}

	fmt.Printf("Found %d hub(s):\n\n", len(found))
	for i, hub := range found {
		name := hub.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("%d. %s\n", i+1, name)
		fmt.Printf("   ID:      %s\n", hub.ID)
		fmt.Printf("   Signal:  %d dBm\n", hub.RSSI)
		if hub.Known != "" {
			fmt.Printf("   Known:   %s\n", hub.Known)
		}
		fmt.Println()
	}

	fmt.Println("Use 'hubsetup setup --hub <id>' to put a hub on Wi-Fi")
	return nil
}

// statusCmd reads the provisioning state of one hub
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the Wi-Fi state of a hub",
	Long: `Connect to a hub over Bluetooth LE and show its Wi-Fi state.

Prints the connection state, the network the hub is on, its firmware
version and the address of its API. When an address is known, the hub
API is queried to check that it answers.`,
	Example: `  # First hub in range
  hubsetup status

  # A specific hub by address or nickname
  hubsetup status --hub living-room`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&hubRef, "hub", "", "Hub radio address or nickname (default: first hub found)")
	statusCmd.Flags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, json)")
}

type hubStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	State     string `json:"state"`
	SSID      string `json:"ssid,omitempty"`
	Version   string `json:"version,omitempty"`
	Address   string `json:"address,omitempty"`
	Reachable bool   `json:"reachable"`
	Onboarded bool   `json:"onboarded"`
	APIStatus string `json:"api_status,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()
	p := ui.NewPrinter(os.Stdout)

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	radio, err := openRadio()
	if err != nil {
		return err
	}

	hub, err := findHub(ctx, radio, reg, hubRef, reg.Preferences.ScanDuration())
	if err != nil {
		p.PrintError("Hub not found", err, scanTroubleshooting()...)
		return err
	}

	sess := session.New(radio, hub)
	if err := sess.Connect(ctx); err != nil {
		p.PrintError("Could not connect to hub", err,
			"Move closer to the hub and try again",
			"Power cycle the hub to restart setup mode")
		return err
	}
	defer func() {
		if err := sess.Disconnect(context.Background()); err != nil {
			logging.Debug("Disconnect failed", zap.Error(err))
		}
	}()

	st := hubStatus{ID: hub.ID, Name: hub.Name}

	state, err := sess.ReadConnectionState(ctx)
	if err != nil {
		return fmt.Errorf("failed to read connection state: %w", err)
	}
	st.State = state.State.String()
	st.SSID = state.SSID

	if st.Version, err = sess.ReadVersion(ctx); err != nil {
		logging.Warn("Failed to read version", zap.Error(err))
	}

	address, err := sess.ReadReachableAddress(ctx)
	switch {
	case err == nil:
		st.Address = address
	case errors.Is(err, session.ErrEmptyAddress):
	default:
		logging.Warn("Failed to read address", zap.Error(err))
	}

	if st.Address != "" {
		info, err := hubapi.NewProber().Probe(ctx, st.Address)
		if err == nil {
			st.Reachable = true
			st.Onboarded = info.Onboarded
		} else {
			st.APIStatus = apiProblem(err)
		}
	}

	if outputFormat == "json" {
		return printJSON(st)
	}

	details := []ui.Param{
		{Key: "Hub", Value: hub.DisplayName()},
		{Key: "ID", Value: hub.ID},
		{Key: "Wi-Fi", Value: st.State},
	}
	if st.SSID != "" {
		details = append(details, ui.Param{Key: "Network", Value: st.SSID})
	}
	if st.Version != "" {
		details = append(details, ui.Param{Key: "Version", Value: st.Version})
	}
	if st.Address == "" {
		details = append(details, ui.Param{Key: "Address", Value: "(none yet)"})
		p.PrintResult(ui.NewWarningResult("Hub has no address", details...))
		return nil
	}
	details = append(details, ui.Param{Key: "Address", Value: st.Address})
	details = append(details, ui.Param{Key: "API", Value: yesNo(st.Reachable, "answering", st.APIStatus)})

	if !st.Reachable {
		p.PrintResult(ui.NewWarningResult("Hub API not reachable from here", details...))
		return nil
	}
	p.PrintSuccess("Hub is online", details...)
	return nil
}

// locateCmd finds onboarded hubs on the current network
var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Find set-up hubs on the local network",
	Long: `Look up hubs from the registry on the local network using mDNS.

Each located address is checked against the hub API. Addresses that
changed since setup are updated in the registry.`,
	Example: `  # Every hub in the registry
  hubsetup locate

  # One hub
  hubsetup locate --hub living-room

  # Any address, without the registry
  hubsetup locate --address http://hub-4f2a.local/`,
	RunE: runLocate,
}

func init() {
	locateCmd.Flags().StringVar(&hubRef, "hub", "", "Hub radio address or nickname (default: all known hubs)")
	locateCmd.Flags().StringVar(&locateAddress, "address", "", "Locate this address instead of registry hubs")
	locateCmd.Flags().IntVar(&locateTimeout, "timeout", 5, "Lookup timeout per hub in seconds")
}

type locateTarget struct {
	id      string
	name    string
	address string
}

func runLocate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()
	p := ui.NewPrinter(os.Stdout)

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}

	var targets []locateTarget
	switch {
	case locateAddress != "":
		targets = append(targets, locateTarget{name: locateAddress, address: locateAddress})
	case hubRef != "":
		id, hub := reg.FindHub(hubRef)
		if hub == nil {
			return fmt.Errorf("hub %q is not in the registry", hubRef)
		}
		targets = append(targets, locateTarget{id: id, name: hub.DisplayName(id), address: hub.LastAddress})
	default:
		for _, id := range reg.HubIDs() {
			hub := reg.GetHub(id)
			targets = append(targets, locateTarget{id: id, name: hub.DisplayName(id), address: hub.LastAddress})
		}
	}

	if len(targets) == 0 {
		fmt.Println("No hubs in the registry.")
		fmt.Println("Use 'hubsetup setup' to onboard a hub first")
		return nil
	}

	locator := discovery.NewMDNSLocator()
	prober := hubapi.NewProber()
	timeout := time.Duration(locateTimeout) * time.Second
	changed := false

	for _, target := range targets {
		if target.address == "" {
			p.PrintResult(ui.NewWarningResult(target.name+": no address recorded",
				ui.Param{Key: "ID", Value: target.id}))
			continue
		}

		located, err := locate(ctx, locator, target.address, timeout)
		if err != nil {
			p.PrintError(target.name+": not found", err, locateTroubleshooting(err)...)
			continue
		}

		details := []ui.Param{{Key: "Address", Value: located}}
		if located != target.address {
			details = append(details, ui.Param{Key: "Was", Value: target.address})
		}

		info, err := prober.Probe(ctx, located)
		if err != nil {
			details = append(details, ui.Param{Key: "API", Value: hubapi.GetShortErrorMessage(err)})
			p.PrintResult(ui.NewWarningResult(target.name+": found, API "+apiProblem(err), details...))
			continue
		}
		details = append(details, ui.Param{Key: "Onboarded", Value: yesNo(info.Onboarded, "yes", "no")})

		if target.id != "" && located != target.address {
			reg.RecordJoin(target.id, reg.GetHub(target.id).LastSSID, located)
			changed = true
		}
		p.PrintSuccess(target.name+": online", details...)
	}

	if changed {
		if err := reg.Save(); err != nil {
			return fmt.Errorf("failed to save registry: %w", err)
		}
	}
	return nil
}

func locate(ctx context.Context, locator *discovery.MDNSLocator, address string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return locator.LocateAddress(ctx, address)
}

// hubsCmd lists the registry
var hubsCmd = &cobra.Command{
	Use:   "hubs",
	Short: "List hubs set up from this computer",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}

		ids := reg.HubIDs()
		if len(ids) == 0 {
			fmt.Println("No hubs in the registry.")
			return nil
		}

		for _, id := range ids {
			hub := reg.GetHub(id)
			fmt.Printf("%s\n", hub.DisplayName(id))
			fmt.Printf("   ID:       %s\n", id)
			if hub.LastSSID != "" {
				fmt.Printf("   Network:  %s\n", hub.LastSSID)
			}
			if hub.LastAddress != "" {
				fmt.Printf("   Address:  %s\n", hub.LastAddress)
			}
			if hub.HubVersion != "" {
				fmt.Printf("   Version:  %s\n", hub.HubVersion)
			}
			if !hub.LastSeen.IsZero() {
				fmt.Printf("   Seen:     %s\n", hub.LastSeen.Local().Format(time.RFC1123))
			}
			fmt.Println()
		}
		return nil
	},
}

func locateTroubleshooting(err error) []string {
	tips := []string{
		"Check that this computer is on the same network as the hub",
		"Some routers block mDNS between wired and wireless clients",
	}
	var apiErr *hubapi.APIError
	if errors.As(err, &apiErr) {
		tips = append(tips, hubapi.GetTroubleshootingHint(err))
	}
	return tips
}

// apiProblem describes a failed probe in a few words
func apiProblem(err error) string {
	switch {
	case hubapi.IsNetworkError(err):
		return "not answering"
	case hubapi.IsHTTPError(err):
		return "answering with errors"
	case hubapi.IsParseError(err):
		return "not a hub API"
	}
	return "unavailable"
}

func yesNo(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}
