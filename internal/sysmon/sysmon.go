// Package sysmon provides lightweight host-side observations for progress
// reporting: established TCP connection counts toward the target and coarse
// memory/load figures. Everything here is advisory and Linux-specific, with
// /proc fallbacks when netlink is unavailable.
package sysmon

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vishvananda/netlink"
)

// TCPMonitor samples the count of established TCP connections whose remote
// port matches one of the target ports. With no ports configured it counts
// every established connection.
type TCPMonitor struct {
	mu       sync.RWMutex
	current  int
	previous int
	ports    []int
}

func NewTCPMonitor(targetPorts ...int) *TCPMonitor {
	return &TCPMonitor{ports: targetPorts}
}

// Start samples once per second until the context is cancelled.
func (m *TCPMonitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.update(countEstablished(m.ports))
			}
		}
	}()
}

func (m *TCPMonitor) update(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previous = m.current
	m.current = count
}

// Count returns the last sampled connection count.
func (m *TCPMonitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Delta returns the change since the previous sample.
func (m *TCPMonitor) Delta() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current - m.previous
}

// countEstablished prefers netlink socket diagnostics and falls back to
// parsing /proc/net/tcp when the diag call fails.
func countEstablished(ports []int) int {
	socks, err := netlink.SocketDiagTCP(0)
	if err != nil {
		return countEstablishedFromProc(ports)
	}

	count := 0
	for _, s := range socks {
		if s.State != netlink.TCP_ESTABLISHED {
			continue
		}
		if matchesPort(int(s.ID.DestinationPort), ports) {
			count++
		}
	}
	return count
}

func matchesPort(port int, ports []int) bool {
	if len(ports) == 0 {
		return true
	}
	for _, p := range ports {
		if port == p {
			return true
		}
	}
	return false
}

func countEstablishedFromProc(ports []int) int {
	count := 0
	for _, path := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		sc.Scan() // header
		for sc.Scan() {
			fields := strings.Fields(sc.Text())
			// fields[2] is rem_address as IP:PORT hex, fields[3] the state.
			if len(fields) < 4 || fields[3] != "01" {
				continue
			}
			if matchesPort(remotePort(fields[2]), ports) {
				count++
			}
		}
		f.Close()
	}
	return count
}

// remotePort parses the hex port out of a /proc/net/tcp rem_address field.
// Returns -1 when the field is malformed.
func remotePort(remAddr string) int {
	idx := strings.LastIndex(remAddr, ":")
	if idx == -1 {
		return -1
	}
	port, err := strconv.ParseInt(remAddr[idx+1:], 16, 32)
	if err != nil {
		return -1
	}
	return int(port)
}

// HostStats is a coarse host resource snapshot for progress lines.
type HostStats struct {
	MemoryUsedMB  float64
	MemoryTotalMB float64
	LoadPercent   float64
}

// ReadHostStats reads /proc/meminfo and /proc/loadavg. Missing files leave
// the corresponding fields zero.
func ReadHostStats() HostStats {
	var hs HostStats

	if data, err := os.ReadFile("/proc/meminfo"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			kb, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(line, "MemTotal:"):
				hs.MemoryTotalMB = kb / 1024
			case strings.HasPrefix(line, "MemAvailable:"):
				hs.MemoryUsedMB = hs.MemoryTotalMB - kb/1024
			}
		}
	}

	if data, err := os.ReadFile("/proc/loadavg"); err == nil {
		if fields := strings.Fields(string(data)); len(fields) >= 1 {
			if load, err := strconv.ParseFloat(fields[0], 64); err == nil {
				hs.LoadPercent = load / float64(runtime.NumCPU()) * 100
				if hs.LoadPercent > 100 {
					hs.LoadPercent = 100
				}
			}
		}
	}
	return hs
}
