package discovery

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Browser finds gateways on the local network.
type Browser interface {
	// Browse streams gateways as they are found. The channel is closed
	// when ctx is done.
	Browse(ctx context.Context) (<-chan *GatewayService, error)

	// FindAll collects gateways until the browse timeout expires.
	FindAll(ctx context.Context) ([]*GatewayService, error)

	// FindByName returns the gateway with the given instance name.
	FindByName(ctx context.Context, name string) (*GatewayService, error)

	// Stop cancels every running browse.
	Stop()
}

// BrowserConfig configures browsing.
type BrowserConfig struct {
	// BrowseTimeout bounds FindAll and FindByName.
	// Default: 3 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) (*MDNSBrowser, error) {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MDNSBrowser{
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Browse streams gateways as they are found. Answers for the same
// instance from several interfaces are merged into one service; only the
// first sighting is emitted.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *GatewayService, error) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, context.Canceled
	}
	ctx, cancel := mergeCancel(ctx, b.ctx)
	b.mu.Unlock()

	out := make(chan *GatewayService)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		defer cancel()

		agg := newAggregator()
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc, isNew := agg.add(entry)
				if !isNew {
					continue
				}
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				agg.remove(entry)

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}()

	return out, nil
}

// FindAll collects every gateway that answers within the browse timeout,
// sorted by instance name.
func (b *MDNSBrowser) FindAll(ctx context.Context) ([]*GatewayService, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.BrowseTimeout)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	var found []*GatewayService
	for svc := range results {
		found = append(found, svc)
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].InstanceName < found[j].InstanceName
	})
	return found, nil
}

// FindByName returns the gateway with the given instance name.
func (b *MDNSBrowser) FindByName(ctx context.Context, name string) (*GatewayService, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.BrowseTimeout)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	for svc := range results {
		if svc.InstanceName == name {
			return svc, nil
		}
	}
	return nil, ErrNotFound
}

// Stop cancels every running browse.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	b.cancel()
}

func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// mergeCancel returns a context that is done when either parent is.
func mergeCancel(ctx, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

var _ Browser = (*MDNSBrowser)(nil)
