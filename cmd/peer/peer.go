// Package peer holds one-shot outbound calls against another device.
package peer

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/0w0mewo/localsendgs/internal/crypto"
	"github.com/0w0mewo/localsendgs/internal/localsend"
	"github.com/0w0mewo/localsendgs/internal/localsend/constants"
	"github.com/0w0mewo/localsendgs/internal/localsend/utils"
	"github.com/0w0mewo/localsendgs/internal/models"
	"github.com/spf13/cobra"
)

var (
	address  string
	port     int
	protocol string
	timeout  time.Duration

	alias       string
	fingerprint string
	selfPort    int
)

var Cmd = &cobra.Command{
	Use:   "peer",
	Short: "Talk to a single device",
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this device with a peer",
	RunE: func(cmd *cobra.Command, args []string) error {
		fp := fingerprint
		if fp == "" {
			var err error
			if fp, err = crypto.NewFingerprint(); err != nil {
				return err
			}
		}

		self := models.NewDevice(
			models.NewDeviceInfo(alias, fp, constants.ProtocolVersion, constants.DeviceModel, constants.DeviceType),
			selfPort, constants.ProtocolHTTPS)

		if err := localsend.NewClient(timeout).RegisterDeviceAt(address, port, protocol, self); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Registered as %s with %s:%d\n", self.Alias, address, port)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <session id>",
	Short: "Ask a peer to stop an upload session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return localsend.NewClient(timeout).SendCancelRequest(address, port, protocol, args[0])
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the device info of a peer",
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := localsend.NewClient(timeout).GetDeviceInfo(address, port, protocol)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(dev)
	},
}

func init() {
	flags := Cmd.PersistentFlags()
	flags.StringVarP(&address, "address", "a", "", "peer IP address")
	flags.IntVar(&port, "port", constants.DefaultPort, "peer port")
	flags.StringVar(&protocol, "protocol", constants.ProtocolHTTPS, "http or https")
	flags.DurationVar(&timeout, "timeout", localsend.DefaultClientTimeout, "request timeout")
	Cmd.MarkPersistentFlagRequired("address")

	registerCmd.Flags().StringVarP(&alias, "devname", "n", utils.GenAlias(), "alias to register with")
	registerCmd.Flags().StringVar(&fingerprint, "fingerprint", "", "fingerprint to register with (random when empty)")
	registerCmd.Flags().IntVar(&selfPort, "self-port", constants.DefaultPort, "port this device serves on")

	Cmd.AddCommand(registerCmd, cancelCmd, infoCmd)
}
