package discovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/moppy-project/moppy-go/pkg/wire"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeGatewayTXT creates the TXT records for a gateway.
func EncodeGatewayTXT(info *GatewayInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	baud := info.BaudRate
	if baud == 0 {
		baud = wire.DefaultBaudRate
	}
	txt[TXTKeyDevice] = info.Device
	txt[TXTKeyBaudRate] = strconv.Itoa(baud)

	if info.StartByte != 0 && info.StartByte != wire.StartByte {
		txt[TXTKeyStartByte] = fmt.Sprintf("%02x", info.StartByte)
	}
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}
	return txt
}

// DecodeGatewayTXT parses gateway TXT records into a GatewayInfo.
// InstanceName and Port are not part of the TXT data and stay zero.
func DecodeGatewayTXT(txt TXTRecordMap) (*GatewayInfo, error) {
	info := &GatewayInfo{StartByte: wire.StartByte}

	dev, ok := txt[TXTKeyDevice]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyDevice)
	}
	info.Device = dev

	baudStr, ok := txt[TXTKeyBaudRate]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyBaudRate)
	}
	baud, err := strconv.Atoi(baudStr)
	if err != nil || baud <= 0 {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXT, TXTKeyBaudRate, baudStr)
	}
	info.BaudRate = baud

	if sb, ok := txt[TXTKeyStartByte]; ok {
		v, err := strconv.ParseUint(sb, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXT, TXTKeyStartByte, sb)
		}
		info.StartByte = byte(v)
	}

	info.Version = txt[TXTKeyVersion]
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

// DefaultInstanceName returns "moppy-<hostname>", trimmed to fit a label.
func DefaultInstanceName(hostname string) string {
	host, _, _ := strings.Cut(hostname, ".")
	name := "moppy-" + host
	if host == "" {
		name = "moppy"
	}
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}
