// Package dbus exposes the live monitoring session on the session bus.
package dbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/amaresga/simtemp/internal/device"
	"github.com/amaresga/simtemp/internal/monitor"
	"github.com/amaresga/simtemp/internal/record"
)

const (
	BusName   = "org.simtemp.Monitor"
	ObjPath   = godbus.ObjectPath("/org/simtemp/Monitor")
	ifaceName = "org.simtemp.Monitor"

	alertSignal = ifaceName + ".Alert"
	maxSamples  = 10000
)

const introspectXML = `
<node>
  <interface name="` + ifaceName + `">
    <method name="GetStats">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetSamples">
      <arg direction="in" type="i" name="limit"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetConfig">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="Clear"/>
    <signal name="Alert">
      <arg type="t" name="timestamp_ns"/>
      <arg type="i" name="temp_mC"/>
    </signal>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

// Session is the monitor state the service publishes.
type Session interface {
	Stats() monitor.Stats
	Snapshot() []record.Sample
	Clear()
}

// ConfigReader returns the device's effective configuration.
type ConfigReader interface {
	Current() (device.Config, error)
}

// Service exposes a monitoring session over D-Bus.
type Service struct {
	session Session
	config  ConfigReader

	mu   sync.Mutex
	conn *godbus.Conn
}

// NewService creates a new D-Bus service. config may be nil.
func NewService(session Session, config ConfigReader) *Service {
	return &Service{session: session, config: config}
}

// Export connects to the session bus and registers the service.
func (s *Service) Export() (*godbus.Conn, error) {
	conn, err := godbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	if err := s.ExportOn(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// ExportOn registers the service on an existing connection.
func (s *Service) ExportOn(conn *godbus.Conn) error {
	if err := conn.Export(s, ObjPath, ifaceName); err != nil {
		return fmt.Errorf("export object: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(introspectXML), ObjPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", BusName)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	return nil
}

// GetStats returns the session counters as JSON.
func (s *Service) GetStats() (string, *godbus.Error) {
	return marshal(s.session.Stats())
}

// GetSamples returns up to limit of the newest buffered samples as JSON,
// oldest first. A non-positive limit returns the whole buffer.
func (s *Service) GetSamples(limit int32) (string, *godbus.Error) {
	if limit > maxSamples {
		return "", godbus.MakeFailedError(fmt.Errorf("limit %d exceeds %d", limit, maxSamples))
	}

	samples := s.session.Snapshot()
	if limit > 0 && int(limit) < len(samples) {
		samples = samples[len(samples)-int(limit):]
	}

	return marshal(samples)
}

// GetConfig returns the device configuration as JSON.
func (s *Service) GetConfig() (string, *godbus.Error) {
	if s.config == nil {
		return "", godbus.MakeFailedError(fmt.Errorf("device configuration unavailable"))
	}

	cfg, err := s.config.Current()
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}

	return marshal(cfg)
}

// Clear empties the session buffer and counters.
func (s *Service) Clear() *godbus.Error {
	s.session.Clear()
	return nil
}

// Record emits the Alert signal for samples with the threshold crossed flag.
func (s *Service) Record(_ context.Context, sample record.Sample) error {
	if !sample.ThresholdCrossed() {
		return nil
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	return conn.Emit(ObjPath, alertSignal, sample.TimestampNs, sample.TempMC)
}

func marshal(v any) (string, *godbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}
