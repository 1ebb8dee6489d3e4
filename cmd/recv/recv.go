package recv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/0w0mewo/localsendgs/internal/config"
	"github.com/0w0mewo/localsendgs/internal/events"
	"github.com/0w0mewo/localsendgs/internal/identity"
	"github.com/0w0mewo/localsendgs/internal/localsend"
	"github.com/0w0mewo/localsendgs/internal/localsend/constants"
	lsrecv "github.com/0w0mewo/localsendgs/internal/localsend/recv"
	"github.com/0w0mewo/localsendgs/internal/localsend/session"
	"github.com/0w0mewo/localsendgs/internal/models"
	"github.com/0w0mewo/localsendgs/internal/policy"
	"github.com/0w0mewo/localsendgs/internal/utils"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	envFile    string
	devname    string
	savetodir  string
	port       int
	pin        string
	acceptPol  string
	pinPol     string
	quickSave  string
	favorites  []string
	eventsAddr string
)

var Cmd = &cobra.Command{
	Use:   "recv",
	Short: "Receive files from localsend instance",
	Long:  "Announce this device and receive files from localsend instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		slog.Debug("Configuration", "config", cfg)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		id, err := identity.Bootstrap(ctx, identity.Options{
			KeyFile:         cfg.KeyFile,
			CertFile:        cfg.CertFile,
			FingerprintFile: cfg.FingerprintFile,
			Tool:            cfg.CertTool,
		})
		if err != nil {
			return fmt.Errorf("identity bootstrap: %w", err)
		}

		if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
			return err
		}

		self := models.NewDevice(
			models.NewDeviceInfo(cfg.Alias, id.Fingerprint, constants.ProtocolVersion, cfg.DeviceModel, cfg.DeviceType),
			cfg.Port, constants.ProtocolHTTPS)

		bus := events.NewBus()
		defer bus.Close()

		client := localsend.NewClient(cfg.ClientTimeout)

		discoverer, err := localsend.NewDiscoverier(self, cfg.MulticastGroup, cfg.MulticastPort, client)
		if err != nil {
			return fmt.Errorf("discovery: %w", err)
		}
		discoverer.OnDiscovered(func(anno models.Announcement) {
			fav := ""
			if cfg.Favorites.IsFavorite(anno.Fingerprint) {
				fav = " (favorite)"
			}
			fmt.Fprintf(os.Stderr, "Found %s%s at %s:%d\n", anno.Alias, fav, anno.IP, anno.Port)
		})

		recver := lsrecv.NewFileReceiver(lsrecv.Options{
			Identity:        self,
			Certificate:     &id.Certificate,
			StorageDir:      cfg.StorageDir,
			Port:            cfg.Port,
			PIN:             cfg.PIN,
			AcceptPolicy:    cfg.AcceptPolicy,
			PinPolicy:       cfg.PinPolicy,
			QuickSavePolicy: cfg.QuickSavePolicy,
			Favorites:       cfg.Favorites,
			Events:          bus,
			Canceller:       client,
			Registry:        discoverer.Registry(),
		})

		subscribe(bus, recver)

		if cfg.PINGenerated {
			slog.Info("Generated PIN for this run", "pin", cfg.PIN)
		}
		if ips, err := utils.GetMyIPv4Addr(); err == nil {
			slog.Info("Reachable at", "addresses", ips, "port", cfg.Port, "fingerprint", id.Fingerprint, "cert", id.CertHash)
		}

		var wg sync.WaitGroup

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := recver.Start(); err != nil {
				slog.Error("Fail to start server", "error", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := discoverer.Listen(); err != nil {
				slog.Error("Discovery stopped", "error", err)
			}
		}()

		if cfg.EventsAddr != "" {
			bridge := events.NewBridge(bus)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := bridge.ListenAndServe(ctx, cfg.EventsAddr); err != nil {
					slog.Error("Event bridge stopped", "error", err)
				}
			}()
		}

		<-utils.WaitForSignal()

		if recver.HasSession() {
			if err := recver.AbortTransfer(); err != nil {
				slog.Warn("Sender was not told about the cancellation", "error", err)
			}
		}
		if err := recver.Stop(); err != nil {
			slog.Warn("Fail to stop server", "error", err)
		}
		discoverer.Shutdown()
		cancel()
		wg.Wait()

		return nil
	},
}

// subscribe wires the terminal to the engine events: a prompt for transfer
// requests and log lines for the rest.
func subscribe(bus *events.Bus, recver *lsrecv.FileReceiver) {
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		bus.Subscribe(newPrompter(os.Stdin, os.Stderr, recver).ask, events.TransferRequest)
	} else {
		bus.Subscribe(func(ev events.Event) {
			slog.Warn("No terminal to ask, rejecting transfer", "from", ev.Alias, "session", ev.SessionID)
			recver.Reject(ev.SessionID)
		}, events.TransferRequest)
	}

	bus.Subscribe(func(ev events.Event) {
		switch ev.Kind {
		case events.UploadProgress:
			slog.Debug("Receiving", "session", ev.SessionID,
				"received", humanize.IBytes(uint64(ev.Received)), "total", humanize.IBytes(uint64(ev.TotalSize)))
		case events.UploadFinished:
			slog.Info("Transfer finished", "session", ev.SessionID, "files", ev.FileCount)
		case events.UploadCanceled:
			slog.Info("Transfer canceled", "session", ev.SessionID)
		}
	}, events.UploadProgress, events.UploadFinished, events.UploadCanceled)
}

type approver interface {
	CurrentSession() *session.RecvSession
	Accept(sessionId string) error
	Reject(sessionId string) error
}

// prompter asks on the terminal whether a transfer request is accepted. A
// request withdrawn while the question is open is dropped.
type prompter struct {
	recver  approver
	out     io.Writer
	answers chan string
}

func newPrompter(in io.Reader, out io.Writer, recver approver) *prompter {
	p := &prompter{
		recver:  recver,
		out:     out,
		answers: make(chan string),
	}
	go p.read(in)

	return p
}

func (p *prompter) read(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		p.answers <- strings.ToLower(strings.TrimSpace(sc.Text()))
	}
	close(p.answers)
}

func (p *prompter) ask(ev events.Event) {
	sess := p.recver.CurrentSession()
	if sess == nil || sess.ID() != ev.SessionID || !sess.AwaitingApproval() {
		return
	}

	// a line typed while nobody asked must not answer this request
	p.drain()

	fmt.Fprintf(p.out, "%s wants to send %d file(s), %s. Accept? [y/N] ",
		ev.Alias, ev.FileCount, humanize.IBytes(uint64(ev.TotalSize)))

	var err error
	select {
	case answer := <-p.answers:
		if answer == "y" || answer == "yes" {
			err = p.recver.Accept(ev.SessionID)
		} else {
			err = p.recver.Reject(ev.SessionID)
		}
	case <-sess.Done():
		fmt.Fprintf(p.out, "\nRequest from %s withdrawn\n", ev.Alias)
		return
	}

	if err != nil {
		slog.Warn("Transfer request is gone", "session", ev.SessionID, "error", err)
	}
}

func (p *prompter) drain() {
	for {
		select {
		case _, ok := <-p.answers:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("devname") {
		cfg.Alias = devname
	}
	if flags.Changed("dir") {
		cfg.StorageDir = savetodir
	}
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("pin") {
		cfg.PIN = pin
	}
	if flags.Changed("accept") {
		if cfg.AcceptPolicy, err = policy.ParseAcceptPolicy(acceptPol); err != nil {
			return nil, err
		}
	}
	if flags.Changed("pin-policy") {
		if cfg.PinPolicy, err = policy.ParsePinPolicy(pinPol); err != nil {
			return nil, err
		}
	}
	if flags.Changed("quicksave") {
		if cfg.QuickSavePolicy, err = policy.ParseQuickSavePolicy(quickSave); err != nil {
			return nil, err
		}
	}
	for _, fp := range favorites {
		cfg.Favorites.Add(fp)
	}
	if flags.Changed("events") {
		cfg.EventsAddr = eventsAddr
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	flags := Cmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", "", "read settings from this .env file")
	flags.StringVarP(&devname, "devname", "n", "", "Device name that is advertising")
	flags.StringVarP(&savetodir, "dir", "d", "", "Directory for received files (default ~/Downloads)")
	flags.IntVar(&port, "port", constants.DefaultPort, "file server port")
	flags.StringVarP(&pin, "pin", "p", "", "PIN code")
	flags.StringVar(&acceptPol, "accept", "everyone", "who may send: everyone, favorites-only")
	flags.StringVar(&pinPol, "pin-policy", "never", "when to ask for the PIN: never, if-not-favorite, always")
	flags.StringVar(&quickSave, "quicksave", "never", "skip approval for: never, favorites-only, always")
	flags.StringSliceVarP(&favorites, "favorite", "f", nil, "fingerprint of a trusted device (repeatable)")
	flags.StringVar(&eventsAddr, "events", "", "serve engine events over websocket on this address")
}
