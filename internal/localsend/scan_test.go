package localsend

import (
	"encoding/json"
	"net"
	"sync"
	"testing"

	"github.com/0w0mewo/localsendgs/internal/localsend/constants"
	"github.com/0w0mewo/localsendgs/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistrar struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRegistrar) RegisterDeviceAt(address string, port int, protocol string, device models.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, protocol+"://"+address+" "+device.Fingerprint)
	return nil
}

func (f *fakeRegistrar) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testDiscoverier(registrar Registrar) *Discoverier {
	group := &net.UDPAddr{IP: net.ParseIP(constants.DefaultMulticastGroup), Port: constants.DefaultMulticastPort}
	return newDiscoverier(selfDevice(), group, registrar)
}

func announcementPacket(t *testing.T, alias, fingerprint string) []byte {
	t.Helper()

	anno := models.Announcement{
		Device: models.NewDevice(
			models.NewDeviceInfo(alias, fingerprint, constants.ProtocolVersion, "", "mobile"),
			53317, constants.ProtocolHTTPS),
		Announce: true,
	}
	b, err := json.Marshal(anno)
	require.NoError(t, err)
	return b
}

var peer = &net.UDPAddr{IP: net.IPv4(192, 168, 1, 30), Port: 53317}

func TestDiscoveryDedup(t *testing.T) {
	registrar := &fakeRegistrar{}
	disc := testDiscoverier(registrar)

	var surfaced []models.Announcement
	disc.OnDiscovered(func(anno models.Announcement) {
		surfaced = append(surfaced, anno)
	})

	packet := announcementPacket(t, "Phone", "peer-fp")
	disc.handlePacket(packet, peer)
	disc.handlePacket(packet, peer)
	disc.Shutdown()

	require.Len(t, surfaced, 1)
	assert.Equal(t, "Phone", surfaced[0].Alias)
	assert.Equal(t, "192.168.1.30", surfaced[0].IP)
	assert.Len(t, disc.GetAllDiscovered(), 1)

	// every valid announcement is answered with a registration
	assert.Equal(t, 2, registrar.count())
}

func TestDiscoveryIgnoresSelf(t *testing.T) {
	registrar := &fakeRegistrar{}
	disc := testDiscoverier(registrar)
	disc.OnDiscovered(func(models.Announcement) { t.Fatal("self must not be surfaced") })

	b, err := json.Marshal(models.Announcement{Device: selfDevice(), Announce: true})
	require.NoError(t, err)

	disc.handlePacket(b, peer)
	disc.Shutdown()

	assert.Empty(t, disc.GetAllDiscovered())
	assert.Zero(t, registrar.count())
}

func TestDiscoveryDropsMalformedPackets(t *testing.T) {
	registrar := &fakeRegistrar{}
	disc := testDiscoverier(registrar)

	packets := []string{
		`not json`,
		`{"alias":"x"}`,
		`{"alias":"x","fingerprint":"fp"}`,
		`{"fingerprint":"fp","port":53317}`,
		`{"alias":"x","fingerprint":"fp","port":70000}`,
		`[]`,
	}
	for _, p := range packets {
		disc.handlePacket([]byte(p), peer)
	}

	// the loop keeps going after bad datagrams
	disc.handlePacket(announcementPacket(t, "Laptop", "laptop-fp"), peer)
	disc.Shutdown()

	all := disc.GetAllDiscovered()
	require.Len(t, all, 1)
	assert.Equal(t, "Laptop", all["laptop-fp"].Alias)
	assert.Equal(t, 1, registrar.count())
}

func TestDiscoveryDefaultsProtocol(t *testing.T) {
	disc := testDiscoverier(nil)

	disc.handlePacket([]byte(`{"alias":"Old","fingerprint":"old-fp","port":53317}`), peer)

	anno, err := disc.Registry().GetDevice("old-fp")
	require.NoError(t, err)
	assert.Equal(t, constants.ProtocolHTTPS, anno.Protocol)
}

func TestNewDiscoverierRejectsUnicastGroup(t *testing.T) {
	_, err := NewDiscoverier(selfDevice(), "192.168.1.1", 0, nil)
	assert.Error(t, err)
}
