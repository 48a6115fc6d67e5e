package networking

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// AddressLister lists the addresses of all interfaces for an address family.
type AddressLister func(family int) ([]netlink.Addr, error)

func listAddresses(family int) ([]netlink.Addr, error) {
	return netlink.AddrList(nil, family)
}

// FirstGlobalAddress returns the first global unicast address of the host for
// family (netlink.FAMILY_V4 or netlink.FAMILY_V6).
func FirstGlobalAddress(family int) (net.IP, error) {
	return firstGlobalAddress(listAddresses, family)
}

func firstGlobalAddress(list AddressLister, family int) (net.IP, error) {
	addrs, err := list(family)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}

	for _, addr := range addrs {
		if addr.IPNet == nil {
			continue
		}
		ip := addr.IP
		if !ip.IsGlobalUnicast() {
			continue
		}
		if (family == netlink.FAMILY_V4) != (ip.To4() != nil) {
			continue
		}
		return ip, nil
	}
	return nil, fmt.Errorf("no global address found")
}
