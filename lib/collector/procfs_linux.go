// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package collector

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/adsamcik/wirebound/lib/wire"
)

// ProcFS collects connection telemetry from the Linux proc
// filesystem. Socket tables come from /proc/net/{tcp,tcp6,udp,udp6};
// ownership comes from scanning /proc/*/fd for socket symlinks, which
// requires the elevated privileges the helper runs with.
type ProcFS struct {
	root string
}

// New returns a collector reading from /proc.
func New() *ProcFS {
	return &ProcFS{root: "/proc"}
}

// socketTables in parse order. The 6-suffixed files are absent on
// kernels without IPv6; that is not an error.
var socketTables = []struct {
	file     string
	protocol string
}{
	{"net/tcp", "tcp"},
	{"net/tcp6", "tcp6"},
	{"net/udp", "udp"},
	{"net/udp6", "udp6"},
}

// tcpStates maps the kernel's hex state codes to names. UDP rows
// reuse the column but the values are not meaningful there.
var tcpStates = map[string]string{
	"01": "established",
	"02": "syn-sent",
	"03": "syn-recv",
	"04": "fin-wait-1",
	"05": "fin-wait-2",
	"06": "time-wait",
	"07": "close",
	"08": "close-wait",
	"09": "last-ack",
	"0A": "listen",
	"0B": "closing",
}

// Connections parses the socket tables and attributes each socket to
// its owning pid. Sockets whose inode has no owner in the first fd
// scan get one retry against a fresh scan: a socket can appear in the
// table before its owner's fd entry is visible. Still-unowned sockets
// are reported with PID 0.
func (p *ProcFS) Connections(ctx context.Context) ([]wire.ConnectionStat, error) {
	var connections []wire.ConnectionStat
	for _, table := range socketTables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parsed, err := p.parseTable(filepath.Join(p.root, table.file), table.protocol)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		connections = append(connections, parsed...)
	}

	owners, err := p.scanSocketOwners()
	if err != nil {
		return nil, err
	}

	retried := false
	for i := range connections {
		pid, ok := owners[connections[i].Inode]
		if !ok && !retried {
			// The inode may belong to a process that opened it after
			// the first scan. One refresh, shared by all misses.
			retried = true
			if owners, err = p.scanSocketOwners(); err != nil {
				return nil, err
			}
			pid, ok = owners[connections[i].Inode]
		}
		if ok {
			connections[i].PID = pid
		}
	}

	return connections, nil
}

// Processes aggregates Connections by owning pid. Unattributed
// sockets (pid 0) are excluded.
func (p *ProcFS) Processes(ctx context.Context) ([]wire.ProcessStat, error) {
	connections, err := p.Connections(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[int32]int)
	for _, connection := range connections {
		if connection.PID != 0 {
			counts[connection.PID]++
		}
	}

	processes := make([]wire.ProcessStat, 0, len(counts))
	for pid, count := range counts {
		processes = append(processes, wire.ProcessStat{
			PID:             pid,
			Name:            p.processName(pid),
			ConnectionCount: count,
		})
	}
	sort.Slice(processes, func(i, j int) bool { return processes[i].PID < processes[j].PID })
	return processes, nil
}

// parseTable reads one /proc/net socket table. Unparseable rows are
// skipped: the table format is stable but padded, and a single bad
// row should not wipe out the whole report.
func (p *ProcFS) parseTable(path, protocol string) ([]wire.ConnectionStat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var connections []wire.ConnectionStat
	scanner := bufio.NewScanner(file)
	scanner.Scan() // header row
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}

		localAddr, localPort, err := parseSocketAddress(fields[1])
		if err != nil {
			continue
		}
		remoteAddr, remotePort, err := parseSocketAddress(fields[2])
		if err != nil {
			continue
		}
		inode, err := strconv.ParseUint(fields[9], 10, 64)
		if err != nil {
			continue
		}

		stat := wire.ConnectionStat{
			Protocol:   protocol,
			LocalAddr:  localAddr,
			LocalPort:  localPort,
			RemoteAddr: remoteAddr,
			RemotePort: remotePort,
			Inode:      inode,
		}
		if strings.HasPrefix(protocol, "tcp") {
			stat.State = tcpStates[fields[3]]
		}
		connections = append(connections, stat)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return connections, nil
}

// parseSocketAddress decodes the kernel's hex address:port notation.
// IPv4 addresses are one 32-bit word in host byte order; IPv6
// addresses are four such words.
func parseSocketAddress(field string) (string, uint16, error) {
	addrHex, portHex, ok := strings.Cut(field, ":")
	if !ok {
		return "", 0, fmt.Errorf("malformed socket address %q", field)
	}

	port, err := strconv.ParseUint(portHex, 16, 16)
	if err != nil {
		return "", 0, fmt.Errorf("malformed port in %q: %w", field, err)
	}

	raw, err := hex.DecodeString(addrHex)
	if err != nil {
		return "", 0, fmt.Errorf("malformed address in %q: %w", field, err)
	}
	if len(raw) != net.IPv4len && len(raw) != net.IPv6len {
		return "", 0, fmt.Errorf("address in %q has %d bytes", field, len(raw))
	}

	// Reverse each 32-bit word from host (little-endian) order.
	ip := make(net.IP, len(raw))
	for word := 0; word < len(raw); word += 4 {
		ip[word+0] = raw[word+3]
		ip[word+1] = raw[word+2]
		ip[word+2] = raw[word+1]
		ip[word+3] = raw[word+0]
	}

	return ip.String(), uint16(port), nil
}

// scanSocketOwners builds an inode-to-pid map by walking every
// process's fd directory. Processes that exit mid-scan or deny access
// are skipped.
func (p *ProcFS) scanSocketOwners() (map[uint64]int32, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p.root, err)
	}

	owners := make(map[uint64]int32)
	for _, entry := range entries {
		pid, err := strconv.ParseInt(entry.Name(), 10, 32)
		if err != nil {
			continue
		}

		fdDir := filepath.Join(p.root, entry.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			inodeText, ok := strings.CutPrefix(target, "socket:[")
			if !ok {
				continue
			}
			inodeText, ok = strings.CutSuffix(inodeText, "]")
			if !ok {
				continue
			}
			inode, err := strconv.ParseUint(inodeText, 10, 64)
			if err != nil {
				continue
			}
			owners[inode] = int32(pid)
		}
	}
	return owners, nil
}

// processName reads /proc/<pid>/comm, falling back to the empty
// string for processes that exited between collection and lookup.
func (p *ProcFS) processName(pid int32) string {
	data, err := os.ReadFile(filepath.Join(p.root, strconv.Itoa(int(pid)), "comm"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
