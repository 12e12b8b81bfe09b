package common

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"os"
	"runtime"
	"sort"
)

// MachineID derives a stable client identifier from hostname, primary MAC and
// OS platform. The inputs are stable across process restarts on the same host,
// so the id never changes between runs.
// Format: MACHINE-<first 12 hex chars of SHA-256(hostname|mac|platform)>
func MachineID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	sum := sha256.Sum256([]byte(hostname + "|" + PrimaryMAC() + "|" + runtime.GOOS))
	return "MACHINE-" + hex.EncodeToString(sum[:])[:12]
}

// PrimaryMAC returns the hardware address of the first non-loopback interface
// with a MAC, in stable interface-name order. Returns "00:00:00:00:00:00"
// when no interface qualifies.
func PrimaryMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "00:00:00:00:00:00"
	}

	// Sort by name so the selection does not depend on enumeration order
	sort.Slice(ifaces, func(i, j int) bool { return ifaces[i].Name < ifaces[j].Name })

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return "00:00:00:00:00:00"
}

// LocalIP returns the preferred outbound IP of this host. Falls back to
// "127.0.0.1" when no route is available.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
