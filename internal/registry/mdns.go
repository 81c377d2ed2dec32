package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"

	"github.com/ai-servis/core/internal/logging"
)

const (
	// DefaultMDNSServiceType is the mDNS service type all platform
	// services announce under.
	DefaultMDNSServiceType = "_ai-servis._tcp.local."
	mdnsDomain             = "local."
)

// MDNS announces this node's services over multicast DNS and folds
// discovered peers into the registry.
type MDNS struct {
	serviceType string
	registry    *Registry
	logger      zerolog.Logger

	servers []*zeroconf.Server
}

// NewMDNS creates an mDNS bridge for the registry. serviceType falls
// back to the platform default when empty.
func NewMDNS(serviceType string, r *Registry, logger zerolog.Logger) *MDNS {
	if serviceType == "" {
		serviceType = DefaultMDNSServiceType
	}
	return &MDNS{
		serviceType: serviceType,
		registry:    r,
		logger:      logger.With().Str("component", "mdns").Logger(),
	}
}

// browseType strips the trailing ".local." qualifier the resolver
// does not expect.
func (m *MDNS) browseType() string {
	return strings.TrimSuffix(m.serviceType, mdnsDomain)
}

// Announce publishes one service instance. Capabilities travel in a
// comma-separated TXT record.
func (m *MDNS) Announce(name string, port int, capabilities []string) error {
	txt := []string{"capabilities=" + strings.Join(capabilities, ",")}
	server, err := zeroconf.Register(name, m.browseType(), mdnsDomain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("mdns register %s: %w", name, err)
	}
	m.servers = append(m.servers, server)
	m.logger.Info().Str("name", name).Int("port", port).Msg("announced over mdns")
	return nil
}

// Browse folds peers found on the local network into the registry
// until ctx is canceled. A re-announced peer replaces the stored
// record, so the latest host and port always win.
func (m *MDNS) Browse(ctx context.Context) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		defer logging.RecoverPanic(m.logger, "mdnsBrowse", nil)
		for entry := range entries {
			m.handleEntry(entry)
		}
	}()

	if err := resolver.Browse(ctx, m.browseType(), mdnsDomain, entries); err != nil {
		return fmt.Errorf("mdns browse: %w", err)
	}
	return nil
}

func (m *MDNS) handleEntry(entry *zeroconf.ServiceEntry) {
	host := entry.HostName
	if len(entry.AddrIPv4) > 0 {
		host = entry.AddrIPv4[0].String()
	}

	var capabilities []string
	for _, txt := range entry.Text {
		if rest, ok := strings.CutPrefix(txt, "capabilities="); ok && rest != "" {
			capabilities = strings.Split(rest, ",")
		}
	}

	_, err := m.registry.Register(entry.Instance, host, entry.Port, capabilities, "", map[string]any{"source": "mdns"})
	if err != nil {
		// Already known; the fresh announcement replaces the record.
		if _, rErr := m.registry.Restart(entry.Instance, host, entry.Port, capabilities); rErr != nil {
			m.logger.Debug().Str("name", entry.Instance).Err(rErr).Msg("mdns entry not folded in")
			return
		}
		m.logger.Info().Str("name", entry.Instance).Str("host", host).Int("port", entry.Port).Msg("updated service over mdns")
		return
	}
	m.logger.Info().Str("name", entry.Instance).Str("host", host).Int("port", entry.Port).Msg("discovered service over mdns")
}

// Close withdraws all announcements.
func (m *MDNS) Close() {
	for _, s := range m.servers {
		s.Shutdown()
	}
	m.servers = nil
}
