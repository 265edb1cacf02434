// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package collector

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/adsamcik/wirebound/lib/wire"
)

const tcpHeader = "  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode\n"

// writeProcFile creates path under root, making parent directories.
func writeProcFile(t *testing.T, root, path, content string) {
	t.Helper()
	full := filepath.Join(root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", full, err)
	}
}

// addSocketFD registers pid as the owner of a socket inode by
// planting the fd symlink the real kernel would expose.
func addSocketFD(t *testing.T, root string, pid int, fd int, inode string) {
	t.Helper()
	fdDir := filepath.Join(root, strconv.Itoa(pid), "fd")
	if err := os.MkdirAll(fdDir, 0755); err != nil {
		t.Fatalf("creating %s: %v", fdDir, err)
	}
	if err := os.Symlink("socket:["+inode+"]", filepath.Join(fdDir, strconv.Itoa(fd))); err != nil {
		t.Fatalf("creating fd symlink: %v", err)
	}
}

func syntheticProc(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	// 127.0.0.1:3306 established to 127.0.0.1:53412, inode 5001.
	writeProcFile(t, root, "net/tcp", tcpHeader+
		"   0: 0100007F:0CEA 0100007F:D0A4 01 00000000:00000000 00:00000000 00000000  1000        0 5001 1 0000000000000000 100 0 0 10 0\n"+
		"   1: 00000000:1F90 00000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 5002 1 0000000000000000 100 0 0 10 0\n")

	// [::1]:8443 listening, inode 5003.
	writeProcFile(t, root, "net/tcp6", tcpHeader+
		"   0: 00000000000000000000000001000000:20FB 00000000000000000000000000000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 5003 1 0000000000000000 100 0 0 10 0\n")

	// UDP socket, inode 5004. No owner planted: stays pid 0.
	writeProcFile(t, root, "net/udp", tcpHeader+
		"   0: 00000000:0044 00000000:0000 07 00000000:00000000 00:00000000 00000000     0        0 5004 2 0000000000000000 0\n")

	addSocketFD(t, root, 1234, 3, "5001")
	addSocketFD(t, root, 1234, 4, "5002")
	addSocketFD(t, root, 5678, 5, "5003")
	writeProcFile(t, root, "1234/comm", "mysqld\n")
	writeProcFile(t, root, "5678/comm", "webserver\n")

	// Non-numeric /proc entries must not break the fd scan.
	writeProcFile(t, root, "self/comm", "collector.test\n")

	return root
}

func TestConnections(t *testing.T) {
	collector := &ProcFS{root: syntheticProc(t)}
	connections, err := collector.Connections(context.Background())
	if err != nil {
		t.Fatalf("Connections: %v", err)
	}
	if len(connections) != 4 {
		t.Fatalf("got %d connections, want 4: %+v", len(connections), connections)
	}

	want := wire.ConnectionStat{
		Protocol:   "tcp",
		LocalAddr:  "127.0.0.1",
		LocalPort:  3306,
		RemoteAddr: "127.0.0.1",
		RemotePort: 53412,
		State:      "established",
		PID:        1234,
		Inode:      5001,
	}
	if connections[0] != want {
		t.Errorf("connection[0] = %+v, want %+v", connections[0], want)
	}

	listener := connections[2]
	if listener.Protocol != "tcp6" || listener.LocalAddr != "::1" || listener.LocalPort != 8443 {
		t.Errorf("tcp6 listener = %+v", listener)
	}
	if listener.State != "listen" || listener.PID != 5678 {
		t.Errorf("tcp6 listener = %+v", listener)
	}

	orphan := connections[3]
	if orphan.Protocol != "udp" || orphan.PID != 0 || orphan.Inode != 5004 {
		t.Errorf("unowned udp socket = %+v", orphan)
	}
	if orphan.State != "" {
		t.Errorf("udp socket has tcp state %q", orphan.State)
	}
}

func TestConnectionsMissingTables(t *testing.T) {
	root := t.TempDir()
	writeProcFile(t, root, "net/tcp", tcpHeader)

	collector := &ProcFS{root: root}
	connections, err := collector.Connections(context.Background())
	if err != nil {
		t.Fatalf("Connections with absent tcp6/udp tables: %v", err)
	}
	if len(connections) != 0 {
		t.Fatalf("got %d connections from empty tables", len(connections))
	}
}

func TestConnectionsCancelled(t *testing.T) {
	collector := &ProcFS{root: syntheticProc(t)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := collector.Connections(ctx); err != context.Canceled {
		t.Fatalf("Connections on cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestProcesses(t *testing.T) {
	collector := &ProcFS{root: syntheticProc(t)}
	processes, err := collector.Processes(context.Background())
	if err != nil {
		t.Fatalf("Processes: %v", err)
	}
	if len(processes) != 2 {
		t.Fatalf("got %d processes, want 2: %+v", len(processes), processes)
	}

	if processes[0].PID != 1234 || processes[0].Name != "mysqld" || processes[0].ConnectionCount != 2 {
		t.Errorf("processes[0] = %+v", processes[0])
	}
	if processes[1].PID != 5678 || processes[1].Name != "webserver" || processes[1].ConnectionCount != 1 {
		t.Errorf("processes[1] = %+v", processes[1])
	}
}
