package scanner

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
)

const (
	firstHostSuffix = 1
	lastHostSuffix  = 254
)

// Target is one host:port:path candidate of a sweep
type Target struct {
	Host string
	Port int
	Path string
}

func (t Target) URL() string {
	path := t.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(t.Host, strconv.Itoa(t.Port)), path)
}

// BuildTargets expands ipBase.1 .. ipBase.254 across every port, host-major
func BuildTargets(ipBase string, ports []int, path string) []Target {
	base := strings.TrimSuffix(ipBase, ".")
	targets := make([]Target, 0, (lastHostSuffix-firstHostSuffix+1)*len(ports))
	for suffix := firstHostSuffix; suffix <= lastHostSuffix; suffix++ {
		host := fmt.Sprintf("%s.%d", base, suffix)
		for _, port := range ports {
			targets = append(targets, Target{Host: host, Port: port, Path: path})
		}
	}
	return targets
}

// LocalTargets are probed synchronously before any sweep
func LocalTargets(ports []int, path string) []Target {
	targets := make([]Target, 0, 2*len(ports))
	for _, host := range []string{"localhost", "127.0.0.1"} {
		for _, port := range ports {
			targets = append(targets, Target{Host: host, Port: port, Path: path})
		}
	}
	return targets
}

// DetectIPBase returns the /24 prefix of the first private IPv4 address on an up,
// non-loopback interface
func DetectIPBase() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", errors.NewDiscoveryError("failed to list network interfaces", err)
	}

	var addrs []net.Addr
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		addrs = append(addrs, ifaceAddrs...)
	}
	return ipBaseFromAddrs(addrs)
}

func ipBaseFromAddrs(addrs []net.Addr) (string, error) {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		ip4 := ip.To4()
		if ip4 == nil || !ip4.IsPrivate() {
			continue
		}
		return fmt.Sprintf("%d.%d.%d", ip4[0], ip4[1], ip4[2]), nil
	}
	return "", errors.NewNotFoundError("no private IPv4 address on any interface", nil)
}
