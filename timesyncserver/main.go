// Command timesyncserver runs the stateless UDP time-sync echo server,
// grounded on original_source/time_sync/server.cpp's main: load a
// network_config profile by name, bind the "time_sync" system's kissnet
// endpoint, and run until signaled.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/axbycc/corebus/netconfig"
	"github.com/axbycc/corebus/pclock"
	"github.com/axbycc/corebus/stopctl"
	"github.com/axbycc/corebus/timesync"
)

var configName string

var rootCmd = &cobra.Command{
	Use:   "timesyncserver",
	Short: "Stateless UDP time-sync echo server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(configName)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configName, "config-name", "local", "network config profile name")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "timesyncserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configName string) error {
	logger := logging.MustGetLogger("timesyncserver")
	logging.SetBackend(logging.NewLogBackend(os.Stderr, "", 0))

	cfg, err := netconfig.Load(configName)
	if err != nil {
		return err
	}
	system, err := cfg.Get("time_sync")
	if err != nil {
		return err
	}
	hostPort, err := timesync.HostPort(system.Kissnet)
	if err != nil {
		return err
	}

	clock := pclock.New()
	defer clock.Close()

	logger.Infof("starting up the time server on %s", hostPort)
	server, err := timesync.Listen(hostPort, clock, logger)
	if err != nil {
		return err
	}

	stopped := make(chan struct{})
	var ctl stopctl.Controller
	ctl.OnStop(func() {
		server.Close()
		close(stopped)
	})
	ctl.InstallSignalHandler()

	<-stopped
	return nil
}
