package store

import (
	"errors"
	"net"
	"sync"

	"github.com/0w0mewo/localsendgs/internal/models"
)

var ErrNoSuchDevice = errors.New("No such device")

// DiscoveriedDevices holds every device seen on the network, keyed by
// fingerprint. The first record for a fingerprint wins.
type DiscoveriedDevices struct {
	devices map[string]models.Announcement
	mu      *sync.RWMutex
}

func NewDiscoveriedDevices() *DiscoveriedDevices {
	return &DiscoveriedDevices{
		devices: make(map[string]models.Announcement),
		mu:      &sync.RWMutex{},
	}
}

// PutDevice records a device and reports whether it was not known before.
// A repeated fingerprint leaves the stored record untouched.
func (dd *DiscoveriedDevices) PutDevice(ip net.IP, anno models.Announcement) bool {
	dd.mu.Lock()
	defer dd.mu.Unlock()

	if _, exist := dd.devices[anno.Fingerprint]; exist {
		return false
	}

	if ip4 := ip.To4(); ip4 != nil {
		anno.IP = ip4.String()
	} else if ip != nil {
		anno.IP = ip.String()
	}
	dd.devices[anno.Fingerprint] = anno

	return true
}

func (dd *DiscoveriedDevices) GetDevice(fingerprint string) (models.Announcement, error) {
	dd.mu.RLock()
	defer dd.mu.RUnlock()

	anno, ok := dd.devices[fingerprint]
	if !ok {
		return models.Announcement{}, ErrNoSuchDevice
	}

	return anno, nil
}

func (dd *DiscoveriedDevices) GetAllDevices() map[string]models.Announcement {
	dd.mu.RLock()
	defer dd.mu.RUnlock()

	result := make(map[string]models.Announcement, len(dd.devices))
	for k, v := range dd.devices {
		result[k] = v
	}
	return result
}

func (dd *DiscoveriedDevices) Clear() {
	dd.mu.Lock()
	defer dd.mu.Unlock()

	clear(dd.devices)
}
