package core

import (
	"fmt"

	"github.com/pion/stun"
)

// DefaultSTUNServer is queried when a node registers without an explicit IP.
const DefaultSTUNServer = "stun.l.google.com:19302"

// DiscoverPublicIP asks a STUN server which IPv4 address our packets come from.
// Registration ranks nodes by this address, so it has to be the one peers see.
func DiscoverPublicIP(server string) (string, error) {
	logger := NewLogger("stun", "")

	c, err := stun.Dial("udp4", server)
	if err != nil {
		return "", fmt.Errorf("dial stun server %s: %w", server, err)
	}
	defer c.Close()

	var (
		ip    string
		cbErr error
	)
	message := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	err = c.Do(message, func(res stun.Event) {
		if res.Error != nil {
			cbErr = res.Error
			return
		}
		ip, cbErr = mappedIPv4(res.Message)
	})
	if err != nil {
		return "", fmt.Errorf("stun binding request: %w", err)
	}
	if cbErr != nil {
		return "", cbErr
	}

	logger.Printf("public address ip=%s server=%s\n", ip, server)
	return ip, nil
}

func mappedIPv4(m *stun.Message) (string, error) {
	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(m); err != nil {
		return "", fmt.Errorf("stun response has no mapped address: %w", err)
	}
	ip4 := xorAddr.IP.To4()
	if ip4 == nil {
		return "", fmt.Errorf("stun mapped address %s is not IPv4", xorAddr.IP)
	}
	return ip4.String(), nil
}
