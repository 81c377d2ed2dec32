package registry

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func mdnsEntry(instance, ip string, port int, capabilities string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, "_ai-servis._tcp", mdnsDomain)
	e.Port = port
	e.AddrIPv4 = []net.IP{net.ParseIP(ip)}
	e.Text = []string{"capabilities=" + capabilities}
	return e
}

func TestMDNSEntryRegistersService(t *testing.T) {
	r := New(zerolog.Nop())
	m := NewMDNS("", r, zerolog.Nop())

	m.handleEntry(mdnsEntry("gpio", "192.168.1.10", 8081, "hardware,gpio"))

	e, err := r.Get("gpio")
	require.NoError(t, err)
	require.Equal(t, "192.168.1.10", e.Host)
	require.Equal(t, 8081, e.Port)
	require.Equal(t, []string{"hardware", "gpio"}, e.Capabilities)
}

func TestMDNSReannounceReplacesRecord(t *testing.T) {
	r := New(zerolog.Nop())
	m := NewMDNS("", r, zerolog.Nop())

	m.handleEntry(mdnsEntry("gpio", "192.168.1.10", 8081, "hardware"))
	m.handleEntry(mdnsEntry("gpio", "192.168.1.20", 9090, "hardware,gpio"))

	e, err := r.Get("gpio")
	require.NoError(t, err)
	require.Equal(t, "192.168.1.20", e.Host)
	require.Equal(t, 9090, e.Port)
	require.Equal(t, []string{"hardware", "gpio"}, e.Capabilities)
}
