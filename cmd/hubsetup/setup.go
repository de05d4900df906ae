package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/hubonboard/hubsetup/internal/config"
	"github.com/hubonboard/hubsetup/internal/discovery"
	"github.com/hubonboard/hubsetup/internal/hubapi"
	"github.com/hubonboard/hubsetup/internal/logging"
	"github.com/hubonboard/hubsetup/internal/provisioning"
	"github.com/hubonboard/hubsetup/internal/session"
	"github.com/hubonboard/hubsetup/internal/ui"
)

// Setup flags
var (
	setupSSID         string
	setupNickname     string
	joinTimeout       int
	relocationTimeout int
	pollInterval      int
	noMDNS            bool
)

// Progress steps of a setup run
const (
	stepConnect = iota + 1
	stepChoose
	stepSend
	stepJoin
	stepFind
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

// setupCmd puts one hub on Wi-Fi
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Put a hub on a Wi-Fi network",
	Long: `Put a hub in setup mode on a Wi-Fi network.

This command will:
  1. Connect to the hub over Bluetooth LE
  2. List the networks the hub can see and let you choose one
  3. Send the network name and password to the hub
  4. Wait for the hub to report that it joined
  5. Find the hub API on the home network

The password is read without echo. When stdin is not a terminal, --ssid
is required and the password is read as one line from stdin.

On success the hub and its address are stored in the registry.`,
	Example: `  # Interactive setup with the first hub found
  hubsetup setup

  # A specific hub and network
  hubsetup setup --hub D4:36:39:0A:11:F2 --ssid HomeNet

  # Scripted
  echo "$WIFI_PASSWORD" | hubsetup setup --ssid HomeNet --nickname kitchen

  # Slow networks
  hubsetup setup --join-timeout 60 --relocation-timeout 120`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().StringVar(&hubRef, "hub", "", "Hub radio address or nickname (default: first hub found)")
	setupCmd.Flags().StringVar(&setupSSID, "ssid", "", "Network to join (skips the network picker)")
	setupCmd.Flags().StringVar(&setupNickname, "nickname", "", "Name to remember the hub by")
	setupCmd.Flags().IntVar(&joinTimeout, "join-timeout", 0, "Seconds to wait for the hub to join (default from preferences)")
	setupCmd.Flags().IntVar(&relocationTimeout, "relocation-timeout", 0, "Seconds to wait for the hub on the home network (default from preferences)")
	setupCmd.Flags().IntVar(&pollInterval, "poll-interval", 0, "Seconds between address checks (default from preferences)")
	setupCmd.Flags().BoolVar(&noMDNS, "no-mdns", false, "Do not use mDNS to find the hub after it joins")
}

// machineConfig merges the flags over the registry preferences
func machineConfig(prefs *config.Preferences) provisioning.Config {
	cfg := provisioning.Config{
		JoinTimeout:       prefs.JoinDuration(),
		RelocationTimeout: prefs.RelocationDuration(),
		PollInterval:      prefs.PollDuration(),
	}
	if joinTimeout > 0 {
		cfg.JoinTimeout = time.Duration(joinTimeout) * time.Second
	}
	if relocationTimeout > 0 {
		cfg.RelocationTimeout = time.Duration(relocationTimeout) * time.Second
	}
	if pollInterval > 0 {
		cfg.PollInterval = time.Duration(pollInterval) * time.Second
	}
	return cfg
}

func runSetup(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()
	p := ui.NewPrinter(os.Stdout)
	interactive := ui.IsTerminal()

	if setupSSID == "" && !interactive {
		return errors.New("--ssid is required when stdin is not a terminal")
	}

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	cfg := machineConfig(reg.Preferences)

	p.PrintHeader("Hub Wi-Fi Setup", "hubsetup setup",
		ui.Param{Key: "Hub", Value: valueOr(hubRef, "first found")},
		ui.Param{Key: "Network", Value: valueOr(setupSSID, "choose")},
		ui.Param{Key: "Join timeout", Value: cfg.JoinTimeout.String()},
		ui.Param{Key: "Relocation timeout", Value: cfg.RelocationTimeout.String()})

	progress := ui.NewProgress("Setup",
		"Connect to hub",
		"Choose network",
		"Send credentials",
		"Wait for hub to join",
		"Find hub on home network")
	view := &setupView{printer: p, progress: progress}

	radio, err := openRadio()
	if err != nil {
		return err
	}

	view.start(stepConnect, "scanning")
	hub, err := findHub(ctx, radio, reg, hubRef, reg.Preferences.ScanDuration())
	if err != nil {
		view.fail(stepConnect, "no hub found")
		p.PrintError("Hub not found", err, scanTroubleshooting()...)
		return err
	}

	owner := session.NewOwner(radio)
	defer owner.Release(context.Background())

	sess := owner.Select(ctx, hub)
	view.start(stepConnect, hub.DisplayName())
	if err := sess.Connect(ctx); err != nil {
		view.fail(stepConnect, "connection failed")
		p.PrintError("Could not connect to hub", err,
			"Move closer to the hub and try again",
			"Power cycle the hub to restart setup mode",
			"Make sure no phone app is connected to the hub")
		return err
	}
	view.complete(stepConnect, hub.DisplayName())

	opts := []provisioning.Option{
		provisioning.WithConfig(cfg),
		provisioning.WithFallbackAddress(lastAddress(reg, hub.ID)),
	}
	if !noMDNS {
		opts = append(opts,
			provisioning.WithLocator(discovery.NewMDNSLocator()),
			provisioning.WithHubName(hub.Name))
	}
	machine, err := provisioning.New(sess, hubapi.NewProber(), opts...)
	if err != nil {
		return err
	}
	defer func() { _ = machine.Close() }()

	networks := make(chan []string, 1)
	machine.OnNetworksChanged(func(list []string) { offerLatest(networks, list) })
	machine.OnTransition(view.onTransition)

	if err := machine.Start(); err != nil {
		return err
	}

	creds, err := readCredentials(ctx, hub, networks, interactive)
	if err != nil {
		view.fail(stepChoose, err.Error())
		if errors.Is(err, ui.ErrCancelled) {
			return nil
		}
		return err
	}
	view.complete(stepChoose, creds.SSID)

	if err := machine.SelectNetwork(creds.SSID); err != nil {
		return err
	}
	// Write failures also land in Wait as a JoinFailedError
	if err := machine.SubmitPassword(ctx, creds.Password); err != nil {
		logging.Debug("Credential write failed", zap.Error(err))
	}

	result, err := machine.Wait(ctx)
	if err != nil {
		p.Newline()
		p.PrintError("Setup failed", err, failureTroubleshooting(err)...)
		return err
	}

	recordJoin(reg, hub, sess.Version(), result)

	details := []ui.Param{
		{Key: "Hub", Value: hub.DisplayName()},
		{Key: "Network", Value: result.SSID},
		{Key: "Address", Value: result.Address},
	}
	if result.Relocated {
		details = append(details, ui.Param{Key: "Found", Value: "on home network"})
	}
	if result.Info != nil {
		details = append(details, ui.Param{Key: "Onboarded", Value: yesNo(result.Info.Onboarded, "yes", "no")})
	}
	p.Newline()
	p.PrintSuccess("Hub joined "+result.SSID, details...)
	return nil
}

// readCredentials asks for the network, unless --ssid was given, and the
// password
func readCredentials(ctx context.Context, hub *discovery.Hub, networks <-chan []string, interactive bool) (provisioning.Credentials, error) {
	creds := provisioning.Credentials{SSID: setupSSID}
	if creds.SSID == "" {
		ssid, err := ui.PickNetwork(ctx, hub.DisplayName(), networks)
		if err != nil {
			return creds, err
		}
		creds.SSID = ssid
	}

	password, err := readPassword(os.Stdin, creds.SSID, interactive)
	if err != nil {
		return creds, fmt.Errorf("failed to read password: %w", err)
	}
	creds.Password = password
	return creds, nil
}

// readPassword reads without echo from a terminal, or one line from a pipe.
// An empty password is allowed for open networks.
func readPassword(in *os.File, ssid string, interactive bool) (string, error) {
	if interactive {
		fmt.Printf("Password for %s: ", ssid)
		data, err := term.ReadPassword(int(in.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return readLine(in)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// offerLatest replaces any unread value in ch with v. ch must have a
// buffer of one and a single sender.
func offerLatest(ch chan []string, v []string) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}

// lastAddress returns where the hub answered after its previous setup
func lastAddress(reg *config.Registry, id string) string {
	if known := reg.GetHub(id); known != nil {
		return known.LastAddress
	}
	return ""
}

func recordJoin(reg *config.Registry, hub *discovery.Hub, hubVersion string, result *provisioning.Result) {
	// other invocations may have saved while setup was waiting
	if fresh, err := config.ReloadRegistry(); err == nil {
		reg = fresh
	} else {
		logging.Warn("Failed to reload registry", zap.Error(err))
	}

	reg.RecordJoin(hub.ID, result.SSID, result.Address)
	entry := reg.GetHub(hub.ID)
	if hub.Name != "" {
		entry.Name = hub.Name
	}
	if hubVersion != "" {
		entry.HubVersion = hubVersion
	}
	if setupNickname != "" {
		reg.SetHubNickname(hub.ID, setupNickname)
	}
	if err := reg.Save(); err != nil {
		logging.Warn("Failed to save registry", zap.Error(err))
	}
}

// failureTroubleshooting maps a failed attempt to tips
func failureTroubleshooting(err error) []string {
	var failed *provisioning.JoinFailedError
	if !errors.As(err, &failed) {
		return nil
	}

	switch failed.Reason {
	case provisioning.ReasonJoinRejected:
		return []string{
			"Check the password and try again",
			"Make sure the network is 2.4 GHz; the hub cannot join 5 GHz-only networks",
			"Move the hub closer to the access point",
		}
	case provisioning.ReasonUnreachableAfterJoin:
		tips := []string{
			"Make sure this computer is on the network the hub joined",
			"Run 'hubsetup locate' once the hub has finished starting",
		}
		var apiErr *hubapi.APIError
		if errors.As(err, &apiErr) {
			tips = append(tips, hubapi.GetTroubleshootingHint(err))
		}
		return tips
	case provisioning.ReasonLinkLost:
		return []string{
			"The Bluetooth link dropped before the credentials were sent",
			"Move closer to the hub and run setup again",
		}
	case provisioning.ReasonSendFailed:
		return []string{
			"The hub did not accept the credentials",
			"Power cycle the hub to restart setup mode",
		}
	case provisioning.ReasonNoAddress:
		return []string{
			"The hub did not report an address",
			"Run 'hubsetup status' to check its Wi-Fi state",
		}
	}
	return nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// setupView prints progress steps. Transitions arrive on the state
// machine goroutine, so every print goes through mu.
type setupView struct {
	printer  *ui.Printer
	progress *ui.Progress

	mu sync.Mutex
}

func (v *setupView) update(number int, status ui.StepStatus, message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.progress.UpdateStep(number, status, message)
	v.printer.PrintStep(v.progress, number)
}

func (v *setupView) start(number int, message string) {
	v.update(number, ui.StepRunning, message)
}

func (v *setupView) complete(number int, message string) {
	v.update(number, ui.StepComplete, message)
}

func (v *setupView) fail(number int, message string) {
	v.update(number, ui.StepFailed, message)
}

func (v *setupView) skip(number int, message string) {
	v.update(number, ui.StepSkipped, message)
}

func (v *setupView) onTransition(t provisioning.Transition) {
	switch t.To {
	case provisioning.StateSendingCredentials:
		v.start(stepSend, "")
	case provisioning.StateAwaitingJoin:
		v.complete(stepSend, "")
		v.start(stepJoin, "")
	case provisioning.StateRelocatingOnHomeNetwork:
		v.skip(stepJoin, t.Reason)
		v.start(stepFind, "polling hub API")
	case provisioning.StateJoined:
		if t.From == provisioning.StateAwaitingJoin {
			v.complete(stepJoin, "")
		}
		v.complete(stepFind, "")
	case provisioning.StateJoinFailed:
		switch t.From {
		case provisioning.StateSendingCredentials:
			v.fail(stepSend, t.Reason)
		case provisioning.StateRelocatingOnHomeNetwork:
			v.fail(stepFind, t.Reason)
		default:
			v.fail(stepJoin, t.Reason)
		}
	}
}
