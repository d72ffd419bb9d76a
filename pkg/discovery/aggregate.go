package discovery

import (
	"github.com/enbility/zeroconf/v3"
)

// aggregator merges answers for one instance seen on several interfaces.
type aggregator struct {
	services map[string]*GatewayService
}

func newAggregator() *aggregator {
	return &aggregator{services: make(map[string]*GatewayService)}
}

// add records entry. It returns the service and whether it is new.
// Entries with unusable TXT data are ignored.
func (a *aggregator) add(entry *zeroconf.ServiceEntry) (*GatewayService, bool) {
	svc := entryToGateway(entry)
	if svc == nil {
		return nil, false
	}
	if existing, found := a.services[svc.InstanceName]; found {
		existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
		return existing, false
	}
	a.services[svc.InstanceName] = svc
	return svc, true
}

// remove drops the addresses in entry and forgets the instance once none
// are left.
func (a *aggregator) remove(entry *zeroconf.ServiceEntry) {
	existing, found := a.services[entry.Instance]
	if !found {
		return
	}
	existing.Addresses = removeAddresses(existing.Addresses, entry)
	if len(existing.Addresses) == 0 {
		delete(a.services, entry.Instance)
	}
}

// entryToGateway converts a zeroconf entry, or returns nil if its TXT
// records do not describe a gateway.
func entryToGateway(entry *zeroconf.ServiceEntry) *GatewayService {
	info, err := DecodeGatewayTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &GatewayService{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         uint16(entry.Port),
		Addresses:    addrs,
		Device:       info.Device,
		BaudRate:     info.BaudRate,
		StartByte:    info.StartByte,
		Version:      info.Version,
	}
}

func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	toRemove := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		toRemove[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		toRemove[ip.String()] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
