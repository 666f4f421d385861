package hostloop

import (
	"fmt"
	"net"
)

// listenDualStack binds the host's listening socket, preferring an
// IPv6 wildcard address (which also accepts IPv4 connections on most
// platforms) and falling back to an IPv4-only bind if that fails
// (§4.7 step 1).
func listenDualStack(port uint16) (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("[::]:%d", port))
	if err == nil {
		return ln, nil
	}

	ln4, err4 := net.Listen("tcp4", fmt.Sprintf(":%d", port))
	if err4 != nil {
		return nil, fmt.Errorf("listen on port %d: ipv6: %v, ipv4: %w", port, err, err4)
	}
	return ln4, nil
}
