package localsend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/0w0mewo/localsendgs/internal/localsend/constants"
	"github.com/0w0mewo/localsendgs/internal/models"
	"github.com/0w0mewo/localsendgs/internal/store"
	"golang.org/x/net/ipv4"
)

const maxDatagramSize = 8 * 1024

// Registrar introduces this device to a peer that announced itself.
type Registrar interface {
	RegisterDeviceAt(address string, port int, protocol string, device models.Device) error
}

// Discoverier announces this device on the multicast group once and
// listens for the announcements of others.
type Discoverier struct {
	self         models.Device
	group        *net.UDPAddr
	conn         net.PacketConn
	pconn        *ipv4.PacketConn
	registry     *store.DiscoveriedDevices
	registrar    Registrar
	onDiscovered func(models.Announcement)

	pending   sync.WaitGroup
	closeOnce sync.Once
}

func newDiscoverier(self models.Device, group *net.UDPAddr, registrar Registrar) *Discoverier {
	return &Discoverier{
		self:      self,
		group:     group,
		registry:  store.NewDiscoveriedDevices(),
		registrar: registrar,
	}
}

// NewDiscoverier binds the multicast port with address reuse and joins group
// on every multicast capable interface that is up. registrar may be nil, in
// which case peers are only recorded.
func NewDiscoverier(self models.Device, group string, port int, registrar Registrar) (*Discoverier, error) {
	groupIP := net.ParseIP(group)
	if groupIP == nil || !groupIP.IsMulticast() {
		return nil, fmt.Errorf("invalid multicast group %q", group)
	}
	if port == 0 {
		port = constants.DefaultMulticastPort
	}

	lc := net.ListenConfig{Control: reuseAddr}
	conn, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}

	d := newDiscoverier(self, &net.UDPAddr{IP: groupIP, Port: port}, registrar)
	d.conn = conn
	d.pconn = ipv4.NewPacketConn(conn)

	if err := d.joinGroup(); err != nil {
		conn.Close()
		return nil, err
	}

	// our own announcement must not come back to us
	if err := d.pconn.SetMulticastLoopback(false); err != nil {
		slog.Debug("Fail to disable multicast loopback", "error", err)
	}

	return d, nil
}

func (d *Discoverier) joinGroup() error {
	ifaces, err := net.Interfaces()
	if err != nil {
		return err
	}

	joined := 0
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := d.pconn.JoinGroup(iface, &net.UDPAddr{IP: d.group.IP}); err != nil {
			slog.Debug("Fail to join multicast group", "interface", iface.Name, "error", err)
			continue
		}
		joined++
	}

	if joined == 0 {
		// let the kernel pick
		return d.pconn.JoinGroup(nil, &net.UDPAddr{IP: d.group.IP})
	}

	return nil
}

// OnDiscovered sets the callback for devices seen for the first time. It
// must be set before Listen.
func (d *Discoverier) OnDiscovered(fn func(models.Announcement)) {
	d.onDiscovered = fn
}

func (d *Discoverier) Registry() *store.DiscoveriedDevices {
	return d.registry
}

func (d *Discoverier) GetAllDiscovered() map[string]models.Announcement {
	return d.registry.GetAllDevices()
}

func (d *Discoverier) advertise() error {
	b, err := json.Marshal(models.Announcement{Device: d.self, Announce: true})
	if err != nil {
		return err
	}

	_, err = d.conn.WriteTo(b, d.group)
	return err
}

// Listen sends one announcement and then handles incoming packets until
// Shutdown.
func (d *Discoverier) Listen() error {
	if err := d.advertise(); err != nil {
		slog.Warn("Fail to send announcement", "error", err)
	}

	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := d.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("Fail to read multicast packet", "error", err)
			continue
		}

		d.handlePacket(buf[:n], src)
	}
}

func (d *Discoverier) handlePacket(b []byte, src net.Addr) {
	var anno models.Announcement
	if err := json.Unmarshal(b, &anno); err != nil {
		slog.Warn("Drop malformed announcement", "remote", src, "error", err)
		return
	}

	if anno.Alias == "" || anno.Fingerprint == "" || anno.Port <= 0 || anno.Port > 65535 {
		slog.Warn("Drop incomplete announcement", "remote", src, "alias", anno.Alias)
		return
	}

	// avoid self discovery
	if anno.Fingerprint == d.self.Fingerprint {
		return
	}

	if anno.Protocol == "" {
		anno.Protocol = constants.ProtocolHTTPS
	}

	ip := addrIP(src)
	if d.registry.PutDevice(ip, anno) {
		slog.Info("Discovered device", "alias", anno.Alias, "address", ip, "port", anno.Port, "protocol", anno.Protocol)

		if d.onDiscovered != nil {
			if stored, err := d.registry.GetDevice(anno.Fingerprint); err == nil {
				d.onDiscovered(stored)
			}
		}
	}

	if d.registrar == nil || ip == nil {
		return
	}

	d.pending.Add(1)
	go func() {
		defer d.pending.Done()

		if err := d.registrar.RegisterDeviceAt(ip.String(), anno.Port, anno.Protocol, d.self); err != nil {
			slog.Warn("Registration failed", "alias", anno.Alias, "address", ip, "error", err)
			return
		}
		slog.Debug("Registration successful", "alias", anno.Alias, "address", ip)
	}()
}

// Shutdown closes the socket, which ends Listen, and waits for registrations
// already in flight.
func (d *Discoverier) Shutdown() error {
	var err error
	d.closeOnce.Do(func() {
		if d.conn != nil {
			err = d.conn.Close()
		}
	})
	d.pending.Wait()

	return err
}

func addrIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		if ip4 := a.IP.To4(); ip4 != nil {
			return ip4
		}
		return a.IP
	case nil:
		return nil
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return nil
		}
		return net.ParseIP(host)
	}
}
