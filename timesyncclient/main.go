// Command timesyncclient runs a time-sync client against the server
// named by a network_config profile, logging the estimated remote
// timestamp and offset once a second, grounded on
// original_source/time_sync/client_demo.cpp's main loop.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/axbycc/corebus/netconfig"
	"github.com/axbycc/corebus/pclock"
	"github.com/axbycc/corebus/stopctl"
	"github.com/axbycc/corebus/timesync"
)

var (
	configName     string
	windowDuration float64
	blastSize      int
)

var rootCmd = &cobra.Command{
	Use:   "timesyncclient",
	Short: "Time-sync client demo",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(configName, windowDuration, blastSize)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configName, "config-name", "local", "network config profile name")
	rootCmd.Flags().Float64Var(&windowDuration, "window-duration", 1.25, "sliding window duration for historical measurements, seconds")
	rootCmd.Flags().IntVar(&blastSize, "blast-size", 20, "number of packets to blast at one time in the time_sync send loop")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "timesyncclient: %v\n", err)
		os.Exit(1)
	}
}

func run(configName string, windowDuration float64, blastSize int) error {
	logger := logging.MustGetLogger("timesyncclient")
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

	opts := timesync.Options{
		WindowDuration: time.Duration(windowDuration * float64(time.Second)),
		BlastSize:      blastSize,
	}
	client, err := timesync.Dial(hostPort, opts, clock, logger)
	if err != nil {
		return err
	}

	var ctl stopctl.Controller
	stopped := make(chan struct{})
	ctl.OnStop(func() {
		client.Close()
		close(stopped)
	})
	ctl.InstallSignalHandler()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stopped:
			return nil
		case <-ticker.C:
			remoteTsMs := client.EstimateTimeServerTimestampMs()
			remoteTsSec := float64(remoteTsMs%10000) / 1000
			logger.Infof("remote ts (sec) %.3f, offset (ms) %d", remoteTsSec, client.EstimateOffsetMs())
		}
	}
}
