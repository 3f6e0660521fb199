package rtpio

import (
	"net"

	"golang.org/x/net/ipv4"
)

// setMulticastTTL sets the outbound multicast TTL on conn, as required by
// the descriptor's ttl field (spec §3.1, §6: "TTL taken from descriptor").
func setMulticastTTL(conn *net.UDPConn, ttl int) error {
	if ttl <= 0 {
		return nil
	}
	return ipv4.NewConn(conn).SetMulticastTTL(ttl)
}
