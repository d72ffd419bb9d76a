package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"

	"github.com/moppy-project/moppy-go/pkg/bridge"
	"github.com/moppy-project/moppy-go/pkg/wire"
)

// Console is the interactive sender.
type Console struct {
	bridge  *bridge.Bridge
	framing wire.Framing
	rl      *readline.Instance

	echo atomic.Bool
}

func newReadline() (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "moppy> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return rl, nil
}

// NewConsole creates a console that reads from rl and sends through b.
// The console owns rl and closes it when Run returns.
func NewConsole(rl *readline.Instance, b *bridge.Bridge, framing wire.Framing) *Console {
	c := &Console{
		bridge:  b,
		framing: framing,
		rl:      rl,
	}
	c.echo.Store(true)
	return c
}

// Stdout returns a writer that coordinates with the prompt.
// Use this for log output to avoid interfering with input.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	unsubscribe := c.bridge.Subscribe(func(m wire.Message) {
		if c.echo.Load() {
			fmt.Fprintf(c.rl.Stdout(), "<- %s\n", formatMessage(m))
		}
	})
	defer unsubscribe()

	printConsoleHelp(c.rl.Stdout())

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		if !c.execute(ctx, c.rl.Stdout(), line) {
			cancel()
			return
		}
	}
}

// execute runs one command line. It returns false when the console should exit.
func (c *Console) execute(ctx context.Context, out io.Writer, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	switch strings.ToLower(fields[0]) {
	case "help", "?":
		printConsoleHelp(out)

	case "quit", "exit", "q":
		fmt.Fprintln(out, "Exiting...")
		return false

	case "status":
		c.cmdStatus(out)

	case "echo":
		on := !c.echo.Load()
		c.echo.Store(on)
		fmt.Fprintf(out, "Echo %s\n", onOff(on))

	case "discover", "scan":
		c.cmdDiscover(ctx, out)

	default:
		m, err := parseMessage(c.framing, fields)
		if errors.Is(err, errUsage) {
			fmt.Fprintf(out, "Usage error for %q (type 'help' for commands)\n", fields[0])
			return true
		}
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return true
		}
		if err := c.bridge.Send(m); err != nil {
			fmt.Fprintf(out, "Send failed: %v\n", err)
			return true
		}
		if !c.bridge.IsConnected() {
			fmt.Fprintln(out, "Not connected, message dropped")
			return true
		}
		fmt.Fprintf(out, "-> %s\n", formatMessage(m))
	}
	return true
}

func (c *Console) cmdStatus(out io.Writer) {
	st := c.bridge.Stats()
	fmt.Fprintf(out, "Port:       %s\n", c.bridge.Port().Name())
	fmt.Fprintf(out, "State:      %s\n", c.bridge.State())
	if id := c.bridge.ConnectionID(); id != "" {
		fmt.Fprintf(out, "Connection: %s\n", id)
	}
	fmt.Fprintf(out, "Frames:     %d in, %d out\n", st.FramesIn, st.FramesOut)
	if st.BytesDiscarded > 0 {
		fmt.Fprintf(out, "Discarded:  %d bytes\n", st.BytesDiscarded)
	}
	if st.ConsumerPanics > 0 {
		fmt.Fprintf(out, "Panics:     %d\n", st.ConsumerPanics)
	}
}

func (c *Console) cmdDiscover(ctx context.Context, out io.Writer) {
	discoverCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	devices, err := bridge.Discover(discoverCtx, c.bridge, bridge.DefaultDiscoverWindow)
	if err != nil {
		fmt.Fprintf(out, "Discovery error: %v\n", err)
		return
	}
	printDevices(out, devices)
}

func printConsoleHelp(w io.Writer) {
	fmt.Fprintln(w, `
Moppy Console Commands:
`+messageUsage+`

  General:
    discover                   - Ping and list responding devices
    status                     - Show bridge status
    echo                       - Toggle printing of received messages
    help                       - Show this help
    quit                       - Exit console`)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// printDevices writes a device table for ping results.
func printDevices(w io.Writer, devices []wire.PongInfo) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices responded")
		return
	}
	fmt.Fprintf(w, "Found %d device(s):\n", len(devices))
	for _, d := range devices {
		fmt.Fprintf(w, "  0x%02X  sub-addresses %d-%d\n", d.DeviceAddress, d.MinSubAddress, d.MaxSubAddress)
	}
}
