package utils

import (
	"net"
	"strconv"
	"strings"
)

// StripBrackets turns "[::1]" into "::1". Other values are returned unchanged.
func StripBrackets(addr string) string {
	if strings.HasPrefix(addr, "[") && strings.HasSuffix(addr, "]") {
		return addr[1 : len(addr)-1]
	}
	return addr
}

// JoinHostPort joins an address that may be written in brackets with port.
func JoinHostPort(addr string, port uint16) string {
	return net.JoinHostPort(StripBrackets(addr), strconv.Itoa(int(port)))
}

// IsValidPort reports whether s is a port number in 1..65535.
func IsValidPort(s string) bool {
	port, err := strconv.Atoi(s)
	return err == nil && port >= 1 && port <= 65535
}
