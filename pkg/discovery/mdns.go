package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/grandcat/zeroconf"
	"github.com/kingctan/sharedpainter/pkg/protocol"
)

// mDNS service identity.
const (
	ServiceType   = "_sharedpaint._tcp"
	ServiceDomain = "local."
)

// TXT record keys.
const (
	txtChannel = "channel="
	txtUser    = "user="
)

// Advertisement is a running mDNS registration.
type Advertisement struct {
	server *zeroconf.Server
}

// Shutdown withdraws the advertisement.
func (a *Advertisement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Advertise registers the local server on mDNS so peers on networks that
// drop broadcasts can still find it.
func (s *Service) Advertise() (*Advertisement, error) {
	id := s.Identity()
	if id.ServerPort == 0 {
		return nil, fmt.Errorf("discovery: advertise: no server port")
	}
	instance := "SharedPaint-" + id.UserID
	server, err := zeroconf.Register(
		instance,
		ServiceType,
		ServiceDomain,
		id.ServerPort,
		[]string{txtChannel + id.Channel, txtUser + id.UserID},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("discovery: mdns register: %w", err)
	}
	s.logger.Info("mdns advertised", "instance", instance, "port", id.ServerPort)
	return &Advertisement{server: server}, nil
}

// Browse looks up advertised servers until ctx is done, reporting those
// on the own channel through Events.ServerFound.
func (s *Service) Browse(ctx context.Context) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("discovery: mdns resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			id := s.Identity()
			info, ok := serverInfoFromEntry(entry)
			if !ok || info.Channel != id.Channel {
				continue
			}
			if hasTXT(entry.Text, txtUser+id.UserID) {
				continue
			}
			s.serverFound(info)
		}
	}()
	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("discovery: mdns browse: %w", err)
	}
	<-ctx.Done()
	return nil
}

func serverInfoFromEntry(e *zeroconf.ServiceEntry) (*protocol.ServerInfo, bool) {
	if e == nil || len(e.AddrIPv4) == 0 || e.Port <= 0 {
		return nil, false
	}
	info := &protocol.ServerInfo{Addr: e.AddrIPv4[0].String(), Port: e.Port}
	found := false
	for _, t := range e.Text {
		if v, ok := strings.CutPrefix(t, txtChannel); ok {
			info.Channel = v
			found = true
		}
	}
	return info, found
}

func hasTXT(text []string, want string) bool {
	for _, t := range text {
		if t == want {
			return true
		}
	}
	return false
}
