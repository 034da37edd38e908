package domain

import (
	"strconv"
	"time"
)

// HostKind selects the transport used to reach a Docker host.
type HostKind string

const (
	// HostKindSSH reaches the Docker CLI over an SSH connection.
	HostKindSSH HostKind = "ssh"
	// HostKindLocal talks to the local Docker socket directly.
	HostKindLocal HostKind = "local"
)

// HostRecord describes a Docker host eligible for container discovery.
// Host lifecycle is independent of routes: disabling a host removes its
// containers from the desired set on the next cycle and the routes are torn
// down by the normal diff.
type HostRecord struct {
	Name     string
	Hostname string
	User     string
	Port     int
	KeyFile  string
	Kind     HostKind
	Enabled  bool
}

// Address returns the SSH dial address for the host.
func (h HostRecord) Address() string {
	port := h.Port
	if port == 0 {
		port = 22
	}
	return h.Hostname + ":" + strconv.Itoa(port)
}

// Host scan outcome states.
const (
	HostStateSuccess = "success"
	HostStateError   = "error"
)

// HostStatus is the per-host scan outcome exposed to operators. It is
// updated after every scan attempt regardless of outcome.
type HostStatus struct {
	State       string
	Message     string
	LastCheck   time.Time
	LastSuccess time.Time
}
