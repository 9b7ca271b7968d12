package services

import (
	"net"
	"net/netip"
	"sort"
)

// NetworkInterface describes a local IPv4 interface and the range it sits on.
type NetworkInterface struct {
	Name      string `json:"name" example:"eth0"`
	IPAddress string `json:"ip_address" example:"192.168.1.20"`
	Subnet    string `json:"subnet" example:"192.168.1.0/24"`
	MAC       string `json:"mac,omitempty" example:"aa:bb:cc:dd:ee:ff"`
	Status    string `json:"status" example:"up"`
}

// InterfaceService enumerates local interfaces so callers can offer a
// sensible default scan range.
type InterfaceService struct {
	list func() ([]net.Interface, error)
}

// NewInterfaceService reads the host's interfaces.
func NewInterfaceService() *InterfaceService {
	return &InterfaceService{list: net.Interfaces}
}

// ListNetworkInterfaces returns one entry per non-loopback IPv4 address,
// sorted by interface name.
func (s *InterfaceService) ListNetworkInterfaces() ([]NetworkInterface, error) {
	ifaces, err := s.list()
	if err != nil {
		return nil, err
	}

	out := []NetworkInterface{}
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		status := "down"
		if iface.Flags&net.FlagUp != 0 {
			status = "up"
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			prefix, ok := ipv4Prefix(ipnet)
			if !ok {
				continue
			}
			out = append(out, NetworkInterface{
				Name:      iface.Name,
				IPAddress: prefix.Addr().String(),
				Subnet:    prefix.Masked().String(),
				MAC:       iface.HardwareAddr.String(),
				Status:    status,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func ipv4Prefix(ipnet *net.IPNet) (netip.Prefix, bool) {
	ip4 := ipnet.IP.To4()
	if ip4 == nil || ip4.IsLoopback() {
		return netip.Prefix{}, false
	}
	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return netip.Prefix{}, false
	}
	addr := netip.AddrFrom4([4]byte(ip4))
	return netip.PrefixFrom(addr, ones), true
}
