package services

import "net"

// IPv4PrefixForTest exposes ipv4Prefix to the external test package.
func IPv4PrefixForTest(ipnet *net.IPNet) (string, bool) {
	p, ok := ipv4Prefix(ipnet)
	if !ok {
		return "", false
	}
	return p.Masked().String(), true
}
