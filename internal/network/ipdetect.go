package network

import (
	"net"
)

// HostIPv4 returns the first non-loopback IPv4 address of an interface
// that is up, or "" if there is none. The heartbeat record carries it so
// operators can tell instances of the same service apart.
func HostIPv4() string {
	ips, err := ipv4Addresses(net.Interfaces)
	if err != nil || len(ips) == 0 {
		return ""
	}
	return ips[0]
}

func ipv4Addresses(interfaces func() ([]net.Interface, error)) ([]string, error) {
	ifaces, err := interfaces()
	if err != nil {
		return nil, err
	}

	var ips []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ip := ipv4Of(addr); ip != "" {
				ips = append(ips, ip)
			}
		}
	}
	return ips, nil
}

func ipv4Of(addr net.Addr) string {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	}
	if ip == nil || ip.IsLoopback() || ip.To4() == nil {
		return ""
	}
	return ip.String()
}
