package models

import (
	"fmt"

	lserrors "github.com/0w0mewo/localsendgs/internal/localsend/errors"
)

type DeviceInfo struct {
	IP          string `json:"-"` // not part of the protocol
	Alias       string `json:"alias"`
	Version     string `json:"version"`
	DeviceModel string `json:"deviceModel,omitempty"` // nullable per protocol
	DeviceType  string `json:"deviceType,omitempty"`  // nullable per protocol
	Fingerprint string `json:"fingerprint"`
	Download    bool   `json:"download,omitempty"` // optional, default false
}

// Device is a DeviceInfo reachable at a port with a transport scheme.
// It is the body of register calls and the "info" of a prepare-upload request.
type Device struct {
	DeviceInfo
	Port     int    `json:"port"`
	Protocol string `json:"protocol"` // "http" or "https"
}

type Announcement struct {
	Device
	Announce bool `json:"announce,omitempty"`
}

func (anno Announcement) GetDevice() Device {
	return anno.Device
}

func NewDeviceInfo(alias, fingerprint, version, model, devType string) DeviceInfo {
	return DeviceInfo{
		Alias:       alias,
		Version:     version,
		DeviceModel: model,
		DeviceType:  devType,
		Fingerprint: fingerprint,
		Download:    false,
	}
}

func NewDevice(info DeviceInfo, port int, protocol string) Device {
	return Device{
		DeviceInfo: info,
		Port:       port,
		Protocol:   protocol,
	}
}

// Same reports whether both records describe the same device. Devices are
// identified by fingerprint only.
func (d Device) Same(other Device) bool {
	return d.Fingerprint != "" && d.Fingerprint == other.Fingerprint
}

// Validate checks the fields a peer must always send. Model, type and the
// download flag stay optional.
func (d *Device) Validate() error {
	switch {
	case d == nil:
		return fmt.Errorf("device info missing: %w", lserrors.ErrInvalidBody)
	case d.Alias == "":
		return fmt.Errorf("alias missing: %w", lserrors.ErrInvalidBody)
	case d.Version == "":
		return fmt.Errorf("version missing: %w", lserrors.ErrInvalidBody)
	case d.Fingerprint == "":
		return fmt.Errorf("fingerprint missing: %w", lserrors.ErrInvalidBody)
	case d.Port <= 0 || d.Port > 65535:
		return fmt.Errorf("port %d invalid: %w", d.Port, lserrors.ErrInvalidBody)
	case d.Protocol == "":
		return fmt.Errorf("protocol missing: %w", lserrors.ErrInvalidBody)
	}
	return nil
}
