package config

import (
	"net"
	"os"
	"strings"
	"sync"
)

// dockerHostGateway is the name Docker Desktop (and --add-host=host-gateway)
// gives the machine running the container.
const dockerHostGateway = "host.docker.internal"

// containerMarkers exist inside Docker and Podman containers respectively.
var containerMarkers = []string{"/.dockerenv", "/run/.containerenv"}

var inContainer = sync.OnceValue(func() bool {
	return detectContainer(containerMarkers)
})

func detectContainer(markers []string) bool {
	for _, m := range markers {
		if _, err := os.Stat(m); err == nil {
			return true
		}
	}
	return false
}

// IsRunningInDocker returns true inside a Docker or Podman container.
// The result is cached after the first call.
func IsRunningInDocker() bool {
	return inContainer()
}

// ResolveHostForDocker maps a loopback database host to the container's
// host gateway when running inside a container, so a database configured as
// "localhost" on a developer machine is still reachable. Other hosts are
// returned unchanged.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, containerized bool) string {
	if !containerized || !isLoopback(host) {
		return host
	}
	return dockerHostGateway
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
