package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/0w0mewo/localsendgs/internal/config"
	"github.com/0w0mewo/localsendgs/internal/crypto"
	"github.com/0w0mewo/localsendgs/internal/localsend"
	"github.com/0w0mewo/localsendgs/internal/localsend/constants"
	"github.com/0w0mewo/localsendgs/internal/localsend/utils"
	"github.com/0w0mewo/localsendgs/internal/models"
	"github.com/spf13/cobra"
)

var (
	timeout int64
	envFile string
)

var Cmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan local network for localsend instance",
	Long:  "Announce a throwaway identity on the multicast group and list the devices that answer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}

		fingerprint, err := crypto.NewFingerprint()
		if err != nil {
			return err
		}
		self := models.NewDevice(
			models.NewDeviceInfo(utils.GenAlias(), fingerprint, constants.ProtocolVersion, cfg.DeviceModel, cfg.DeviceType),
			cfg.Port, constants.ProtocolHTTPS)

		// nothing serves register calls here, so peers are only recorded
		scanner, err := localsend.NewDiscoverier(self, cfg.MulticastGroup, cfg.MulticastPort, nil)
		if err != nil {
			return fmt.Errorf("fail to create advertiser: %w", err)
		}

		slog.Info("Start Scanning")

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*time.Duration(timeout))
		defer cancel()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			scanner.Listen()
		}()

		<-ctx.Done()
		slog.Info("Stop Scanning")
		scanner.Shutdown()
		wg.Wait()

		devlist := scanner.GetAllDiscovered()

		if len(devlist) > 0 {
			fmt.Fprintf(os.Stdout, "Found Devices: \n")
			for fp, info := range devlist {
				fmt.Fprintf(os.Stdout, "\tName: %s, Version: %s, Address: %s:%d, Protocol: %s, Fingerprint: %s\n",
					info.Alias, info.Version, info.IP, info.Port, info.Protocol, fp)
			}
		} else {
			fmt.Fprintln(os.Stderr, "No device found")
		}

		return nil
	},
}

func init() {
	Cmd.PersistentFlags().Int64VarP(&timeout, "timeout", "t", 4, "scan duration in seconds")
	Cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "read settings from this .env file")
}
