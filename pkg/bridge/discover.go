package bridge

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/moppy-project/moppy-go/pkg/wire"
)

// DefaultDiscoverWindow is how long Discover listens for pongs.
const DefaultDiscoverWindow = 500 * time.Millisecond

// Discover broadcasts a system ping and collects the pongs devices send
// back within window (DefaultDiscoverWindow if zero), or until ctx is done.
// Devices are returned sorted by address; a device that answers more than
// once is reported once.
func Discover(ctx context.Context, b *Bridge, window time.Duration) ([]wire.PongInfo, error) {
	if !b.IsConnected() {
		return nil, ErrNotConnected
	}
	if window <= 0 {
		window = DefaultDiscoverWindow
	}

	var (
		mu      sync.Mutex
		devices = make(map[byte]wire.PongInfo)
	)
	unsubscribe := b.Subscribe(func(m wire.Message) {
		info, err := wire.ParsePong(m)
		if err != nil {
			return
		}
		mu.Lock()
		devices[info.DeviceAddress] = info
		mu.Unlock()
	})
	defer unsubscribe()

	if err := b.Send(b.config.Framing.Ping()); err != nil {
		return nil, err
	}

	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-b.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	found := make([]wire.PongInfo, 0, len(devices))
	for _, info := range devices {
		found = append(found, info)
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].DeviceAddress < found[j].DeviceAddress
	})
	return found, ctx.Err()
}
