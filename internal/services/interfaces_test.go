package services_test

import (
	"net"
	"testing"

	"github.com/HerbHall/ipscan/internal/services"
)

func TestInterfaceService_ListNetworkInterfaces(t *testing.T) {
	svc := services.NewInterfaceService()

	interfaces, err := svc.ListNetworkInterfaces()
	if err != nil {
		t.Fatalf("ListNetworkInterfaces: %v", err)
	}

	// We should have at least one interface on any system
	// (though in CI/containers this may not always be true)
	if len(interfaces) == 0 {
		t.Log("No interfaces found (may be expected in some environments)")
		return
	}

	// Verify interface structure
	for i := range interfaces {
		iface := &interfaces[i]
		if iface.Name == "" {
			t.Errorf("Interface %d has empty name", i)
		}
		if iface.IPAddress == "" {
			t.Errorf("Interface %q has empty IP address", iface.Name)
		}
		if iface.Subnet == "" {
			t.Errorf("Interface %q has empty subnet", iface.Name)
		}
		if iface.Status != "up" && iface.Status != "down" {
			t.Errorf("Interface %q has invalid status %q", iface.Name, iface.Status)
		}
	}
}

func TestInterfaceService_ListNetworkInterfaces_NoLoopback(t *testing.T) {
	svc := services.NewInterfaceService()

	interfaces, err := svc.ListNetworkInterfaces()
	if err != nil {
		t.Fatalf("ListNetworkInterfaces: %v", err)
	}

	// Verify no loopback interfaces are returned
	for i := range interfaces {
		iface := &interfaces[i]
		// Common loopback names: lo, lo0, Loopback, etc.
		if iface.IPAddress == "127.0.0.1" {
			t.Errorf("Loopback interface %q should be filtered out", iface.Name)
		}
	}
}

func TestNetworkInterface_MACFormat(t *testing.T) {
	svc := services.NewInterfaceService()

	interfaces, err := svc.ListNetworkInterfaces()
	if err != nil {
		t.Fatalf("ListNetworkInterfaces: %v", err)
	}

	// Verify MAC address format (if present)
	for i := range interfaces {
		iface := &interfaces[i]
		if iface.MAC == "" {
			continue // MAC may be empty for some virtual interfaces
		}
		// MAC should be colon-separated, e.g., "aa:bb:cc:dd:ee:ff"
		if len(iface.MAC) != 17 {
			t.Errorf("Interface %q has invalid MAC length: %q", iface.Name, iface.MAC)
		}
	}
}

func TestIPv4Prefix(t *testing.T) {
	_, lan, _ := net.ParseCIDR("192.168.1.20/24")
	lan.IP = net.ParseIP("192.168.1.20")
	_, v6, _ := net.ParseCIDR("fe80::1/64")
	_, lo, _ := net.ParseCIDR("127.0.0.1/8")
	lo.IP = net.ParseIP("127.0.0.1")

	p, ok := services.IPv4PrefixForTest(lan)
	if !ok || p != "192.168.1.0/24" {
		t.Errorf("lan prefix = %q, %v; want 192.168.1.0/24, true", p, ok)
	}
	if _, ok := services.IPv4PrefixForTest(v6); ok {
		t.Error("IPv6 address must be skipped")
	}
	if _, ok := services.IPv4PrefixForTest(lo); ok {
		t.Error("loopback must be skipped")
	}
}
