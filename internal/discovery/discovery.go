// Package discovery advertises a running maplab server on the local network
// over multicast DNS.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/hashicorp/mdns"
)

// DefaultService is the DNS-SD service type maplab registers under.
const DefaultService = "_maplab._tcp"

// Advertisement describes the instance to announce.
type Advertisement struct {
	Instance string
	Service  string
	HostName string
	Port     int
	IPs      []net.IP
	TXT      []string
}

// Zone builds the mDNS zone for a. Empty fields fall back to the host name
// and DefaultService.
func Zone(a Advertisement) (*mdns.MDNSService, error) {
	if a.Port <= 0 {
		return nil, fmt.Errorf("discovery: invalid port %d", a.Port)
	}
	host, _ := os.Hostname()
	if a.Instance == "" {
		a.Instance = "maplab-" + host
	}
	if a.Service == "" {
		a.Service = DefaultService
	}
	if a.HostName == "" && host != "" {
		a.HostName = host + "."
	}
	zone, err := mdns.NewMDNSService(a.Instance, a.Service, "", a.HostName, a.Port, a.IPs, a.TXT)
	if err != nil {
		return nil, fmt.Errorf("discovery: zone: %w", err)
	}
	return zone, nil
}

// Run answers mDNS queries for a until ctx is cancelled.
func Run(ctx context.Context, a Advertisement, logger *slog.Logger) error {
	zone, err := Zone(a)
	if err != nil {
		return err
	}
	srv, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return fmt.Errorf("discovery: listen: %w", err)
	}
	logger.Info("mdns advertising",
		slog.String("instance", zone.Instance),
		slog.String("service", zone.Service),
		slog.Int("port", zone.Port))

	<-ctx.Done()
	if err := srv.Shutdown(); err != nil {
		return fmt.Errorf("discovery: shutdown: %w", err)
	}
	return nil
}
