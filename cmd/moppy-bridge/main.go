// Command moppy-bridge talks to Moppy instruments over a serial port or a
// network gateway.
//
// Usage:
//
//	moppy-bridge <command> [flags] [args]
//
// Commands:
//
//	monitor   Print every message received from the devices
//	send      Send one message and exit
//	ping      Discover devices on the bus
//	console   Interactive sender
//	gateway   Relay the serial port to TCP clients (advertised over mDNS)
//	discover  List gateways on the local network
//	ports     List serial ports
//
// Connection flags (all commands except discover and ports):
//
//	-config string        YAML configuration file
//	-device string        Serial device (e.g. /dev/ttyUSB0)
//	-remote string        Network gateway host:port, or mdns:<instance>
//	-baud int             Serial baud rate (default 57600)
//	-start-byte int       Frame start byte (default 77)
//	-strict               Fail sends while disconnected
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write a protocol capture (.mlog)
//	-reconnect            Reconnect when the device goes away (default true)
//
// Examples:
//
//	# Watch traffic on a serial adapter
//	moppy-bridge monitor -device /dev/ttyUSB0
//
//	# Play middle C on device 1, drive 1
//	moppy-bridge send -device /dev/ttyUSB0 on 1 1 60
//
//	# Share the adapter on the network
//	moppy-bridge gateway -device /dev/ttyUSB0 -listen :7272
//
//	# Use a gateway found over mDNS
//	moppy-bridge console -remote mdns:moppy-studio
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/moppy-project/moppy-go/pkg/bridge"
	"github.com/moppy-project/moppy-go/pkg/discovery"
	"github.com/moppy-project/moppy-go/pkg/gateway"
	"github.com/moppy-project/moppy-go/pkg/transport"
	"github.com/moppy-project/moppy-go/pkg/wire"
)

const version = "0.1.0"

const usage = `moppy-bridge - Moppy serial bridge

Usage:
  moppy-bridge <command> [flags] [args]

Commands:
  monitor   Print every message received from the devices
  send      Send one message and exit
  ping      Discover devices on the bus
  console   Interactive sender
  gateway   Relay the serial port to TCP clients
  discover  List gateways on the local network
  ports     List serial ports
  version   Print the version

Use "moppy-bridge <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "monitor":
		err = runMonitor(ctx, args)
	case "send":
		err = runSend(ctx, args)
	case "ping":
		err = runPing(ctx, args)
	case "console":
		err = runConsole(ctx, args)
	case "gateway":
		err = runGateway(ctx, args)
	case "discover":
		err = runDiscover(ctx, args)
	case "ports":
		err = runPorts()
	case "version":
		fmt.Println("moppy-bridge", version)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseCommand loads the config file named in args, binds the shared flags
// and parses args. extra registers command-specific flags.
func parseCommand(name, synopsis string, args []string, extra func(*flag.FlagSet, *Config)) (Config, *flag.FlagSet, error) {
	cfg, err := LoadConfig(findConfigPath(args))
	if err != nil {
		return cfg, nil, err
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "moppy-bridge %s\n\nUsage:\n  moppy-bridge %s\n\nFlags:\n", name, synopsis)
		fs.PrintDefaults()
	}
	bindFlags(fs, &cfg)
	if extra != nil {
		extra(fs, &cfg)
	}
	if err := fs.Parse(args); err != nil {
		return cfg, nil, err
	}
	return cfg, fs, nil
}

func runMonitor(ctx context.Context, args []string) error {
	cfg, _, err := parseCommand("monitor", "monitor [flags]", args, nil)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.LogLevel)

	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	unsubscribe := s.bridge.Subscribe(func(m wire.Message) {
		fmt.Printf("%s %s\n", time.Now().Format("15:04:05.000"), formatMessage(m))
	})
	defer unsubscribe()

	logger.Info("monitoring", "port", cfg.PortName())
	return waitSession(ctx, s)
}

func runSend(ctx context.Context, args []string) error {
	cfg, fs, err := parseCommand("send", "send [flags] <message...>\n\n"+messageUsage, args, nil)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.LogLevel)

	m, err := parseMessage(cfg.Framing(), fs.Args())
	if errors.Is(err, errUsage) {
		fs.Usage()
		os.Exit(1)
	}
	if err != nil {
		return err
	}

	// A single send has nothing to retry for.
	cfg.Reconnect = false
	cfg.StrictSend = true

	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.bridge.Send(m); err != nil {
		return err
	}
	fmt.Printf("-> %s\n", formatMessage(m))
	return nil
}

func runPing(ctx context.Context, args []string) error {
	var window time.Duration
	cfg, _, err := parseCommand("ping", "ping [flags]", args, func(fs *flag.FlagSet, _ *Config) {
		fs.DurationVar(&window, "window", bridge.DefaultDiscoverWindow, "How long to wait for answers")
	})
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.LogLevel)

	cfg.Reconnect = false
	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	devices, err := bridge.Discover(ctx, s.bridge, window)
	if err != nil {
		return err
	}
	printDevices(os.Stdout, devices)
	return nil
}

func runConsole(ctx context.Context, args []string) error {
	cfg, _, err := parseCommand("console", "console [flags]", args, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Logs go through readline so they do not clobber the prompt.
	rl, err := newReadline()
	if err != nil {
		return err
	}
	logger := newLogger(rl.Stdout(), cfg.LogLevel)

	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		rl.Close()
		return err
	}
	defer s.close()

	c := NewConsole(rl, s.bridge, cfg.Framing())
	go c.Run(ctx, cancel)
	<-ctx.Done()
	return nil
}

func runGateway(ctx context.Context, args []string) error {
	cfg, _, err := parseCommand("gateway", "gateway [flags]", args, func(fs *flag.FlagSet, cfg *Config) {
		bindGatewayFlags(fs, &cfg.Gateway)
	})
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.LogLevel)

	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	gcfg := gateway.DefaultConfig()
	gcfg.Address = cfg.Gateway.Listen
	gcfg.MaxClients = cfg.Gateway.MaxClients
	gcfg.ResetOnLastDisconnect = cfg.Gateway.ResetOnDisconnect
	gcfg.Framing = cfg.Framing()
	gcfg.Logger = logger
	gcfg.ProtocolLogger = s.protocol
	gcfg.OnConnect = func(c *gateway.Client) {
		logger.Info("client connected", "client", c.ID(), "remote", c.RemoteAddr())
	}
	gcfg.OnDisconnect = func(c *gateway.Client) {
		logger.Info("client disconnected", "client", c.ID(), "remote", c.RemoteAddr())
	}

	srv := gateway.New(s.bridge, gcfg)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	if cfg.Gateway.Advertise {
		adv, err := advertiseGateway(ctx, cfg, srv.Addr())
		if err != nil {
			logger.Warn("mDNS advertising disabled", "error", err)
		} else {
			defer adv.Stop()
		}
	}

	<-ctx.Done()
	st := srv.Stats()
	logger.Info("gateway shutting down",
		"from_clients", st.FromClients, "to_clients", st.ToClients, "dropped", st.Dropped)
	return nil
}

// advertiseGateway publishes the running gateway over mDNS.
func advertiseGateway(ctx context.Context, cfg Config, addr net.Addr) (*discovery.MDNSAdvertiser, error) {
	acfg := discovery.DefaultAdvertiserConfig()
	acfg.Interface = cfg.Gateway.Interface
	adv, err := discovery.NewMDNSAdvertiser(acfg)
	if err != nil {
		return nil, err
	}

	name := cfg.Gateway.Name
	if name == "" {
		host, _ := os.Hostname()
		name = discovery.DefaultInstanceName(host)
	}
	port := discovery.DefaultPort
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = tcp.Port
	}

	info := &discovery.GatewayInfo{
		InstanceName: name,
		Port:         uint16(port),
		Device:       cfg.PortName(),
		BaudRate:     cfg.BaudRate,
		StartByte:    byte(cfg.StartByte),
		Version:      version,
	}
	if err := adv.Advertise(ctx, info); err != nil {
		return nil, err
	}
	return adv, nil
}

func runDiscover(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	timeout := fs.Duration("timeout", discovery.BrowseTimeout, "How long to listen for gateways")
	iface := fs.String("interface", "", "Network interface (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bcfg := discovery.DefaultBrowserConfig()
	bcfg.BrowseTimeout = *timeout
	bcfg.Interface = *iface
	browser, err := discovery.NewMDNSBrowser(bcfg)
	if err != nil {
		return err
	}
	defer browser.Stop()

	gateways, err := browser.FindAll(ctx)
	if err != nil {
		return err
	}
	if len(gateways) == 0 {
		fmt.Println("No gateways found")
		return nil
	}
	fmt.Printf("Found %d gateway(s):\n", len(gateways))
	for _, g := range gateways {
		fmt.Printf("  %-24s %-22s device=%s baud=%d start=0x%02X",
			g.InstanceName, g.Address(), g.Device, g.BaudRate, g.StartByte)
		if g.Version != "" {
			fmt.Printf(" ver=%s", g.Version)
		}
		fmt.Println()
	}
	return nil
}

func runPorts() error {
	ports, err := transport.ListSerialPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	fmt.Println(strings.Join(ports, "\n"))
	return nil
}

// waitSession blocks until ctx is done or, without reconnection, until the
// bridge stops on its own.
func waitSession(ctx context.Context, s *session) error {
	if s.manager != nil {
		<-ctx.Done()
		return nil
	}
	select {
	case <-ctx.Done():
		return nil
	case <-s.bridge.Done():
		return s.bridge.Err()
	}
}
