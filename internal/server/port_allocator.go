package server

import (
	"fmt"
	"net"

	"ems3/internal/domain"
)

type PortStore interface {
	GetPortRange() (int, int, error)
	ListServers() ([]domain.ServerConfig, error)
}

// portFree reports whether nothing on the host is listening on the port.
var portFree = func(port int) bool {
	conn, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// AllocatePort returns the first port of the configured range that no other
// server claims and that is free on the host.
func AllocatePort(store PortStore) (int, error) {
	startPort, endPort, err := store.GetPortRange()
	if err != nil {
		return 0, fmt.Errorf("reading port range: %w", err)
	}

	servers, err := store.ListServers()
	if err != nil {
		return 0, err
	}

	usedPorts := make(map[int]bool)
	for _, s := range servers {
		usedPorts[s.Port] = true
	}

	for port := startPort; port <= endPort; port++ {
		if usedPorts[port] {
			continue
		}
		if portFree(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no free port in range %d-%d", startPort, endPort)
}
