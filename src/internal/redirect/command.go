package redirect

import (
	"strconv"

	"github.com/valyala/fasttemplate"
)

// Action selects whether a rule is inserted or deleted.
type Action int

const (
	ActionInsert Action = iota
	ActionDelete
)

func (a Action) flag() string {
	if a == ActionDelete {
		return "-D"
	}
	return "-I"
}

// Protocol is the transport a rule matches.
type Protocol string

const (
	ProtocolUDP Protocol = "udp"
	ProtocolTCP Protocol = "tcp"
)

// Family is the IP family of a rule.
type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

const (
	ipv4Template = "iptables -t nat {{action}} OUTPUT -p {{proto}} --dport 53 -j DNAT --to-destination {{addr}}:{{port}}"
	ipv6Template = "ip6tables -t nat {{action}} PREROUTING -p {{proto}} --dport 53 -j DNAT --to-destination [{{addr}}]:{{port}}"
)

var (
	ipv4Command = fasttemplate.New(ipv4Template, "{{", "}}")
	ipv6Command = fasttemplate.New(ipv6Template, "{{", "}}")
)

// BuildCommand renders the iptables command that inserts or deletes the DNAT
// rule sending port 53 traffic of proto to addr:port.
func BuildCommand(action Action, proto Protocol, family Family, addr string, port uint16) string {
	t := ipv4Command
	if family == FamilyIPv6 {
		t = ipv6Command
	}
	return t.ExecuteString(map[string]interface{}{
		"action": action.flag(),
		"proto":  string(proto),
		"addr":   addr,
		"port":   strconv.Itoa(int(port)),
	})
}
