/*******************************************************************************
 * Copyright (c) 2026 Genome Research Ltd.
 *
 * Permission is hereby granted, free of charge, to any person obtaining
 * a copy of this software and associated documentation files (the
 * "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish,
 * distribute, sublicense, and/or sell copies of the Software, and to
 * permit persons to whom the Software is furnished to do so, subject to
 * the following conditions:
 *
 * The above copyright notice and this permission notice shall be included
 * in all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
 * EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
 * MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
 * CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
 * TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 ******************************************************************************/

package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/xferd/config"
	"github.com/wtsi-hgi/xferd/daemon"
	"github.com/wtsi-hgi/xferd/service"
	"github.com/wtsi-hgi/xferd/transferd"
)

const (
	serviceName        = "xferd"
	serviceDisplayName = "xferd transfer daemon"
	serviceDescription = "Keeps a file transfer daemon running for xferd clients."
)

// daemonCmd represents the daemon command.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the transfer daemon",
	Long: `Manage the transfer daemon.

Use the sub-commands to start, stop and check on the transfer daemon configured
in your settings file, or to keep it running as a system service.
`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the transfer daemon",
	Long: `Start the transfer daemon.

Starts the daemon configured in your settings file in the background, and
records its pid so that 'xferd daemon stop' can kill it later. Does nothing if
it is already running.
`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := daemonOptions()

		if stats, err := daemon.FindRunning(opts); err == nil {
			info("daemon already running (pid %d)", stats.PID)

			return
		}

		sup := daemon.New(opts)

		ctx, cancel := signalContext()
		defer cancel()

		if err := sup.Start(ctx); err != nil {
			die("failed to start daemon: %s", err)
		}

		if err := sup.WritePIDFile(); err != nil {
			warn("failed to write pid file: %s", err)
		}

		cliPrintf("daemon started at %s (pid %d)\n", sup.Addr(), sup.PID())
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the transfer daemon",
	Long: `Stop the transfer daemon.

Kills the daemon started by 'xferd daemon start' (or 'xferd send --keep').
`,
	Run: func(cmd *cobra.Command, args []string) {
		err := daemon.Stop(daemonOptions())
		if errors.Is(err, daemon.ErrNotRunning) {
			info("daemon is not running")

			return
		}

		if err != nil {
			die("failed to stop daemon: %s", err)
		}

		info("daemon stopped")
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of the transfer daemon",
	Long: `Show the status of the transfer daemon.

Reports if the daemon started by 'xferd daemon start' is running, how much CPU
and memory it is using, and whether it responds at its configured address.
`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := daemonOptions()

		stats, err := daemon.FindRunning(opts)
		if err != nil {
			cliPrintf("%s\n", color.RedString("not running"))
		} else {
			cliPrintf("%s (pid %d, %s)\n", color.GreenString("running"), stats.PID, stats.Name)
			cliPrintf("      cpu: %.1f%%\n", stats.CPUPercent)
			cliPrintf("   memory: %s\n", humanize.IBytes(stats.RSS))
			cliPrintf("  started: %s\n", humanize.Time(time.UnixMilli(stats.CreateTime)))
		}

		if opts.Port == 0 {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		conn, err := transferd.Dial(ctx, opts.Addr(), transferd.DefaultConnectTimeout)
		if err != nil {
			cliPrintf("%s at %s\n", color.YellowString("not responding"), opts.Addr())

			return
		}

		defer conn.Close()

		cliPrintf("responding at %s (api %s)\n", opts.Addr(), conn.Info().APIVersion)
	},
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Keep the transfer daemon running",
	Long: `Keep the transfer daemon running.

Starts the daemon configured in your settings file and restarts it whenever it
exits, until killed. This is what the system service installed by
'xferd daemon install' runs, but you can also run it in the foreground.

Your settings must give the daemon a fixed port, so clients can find it.
`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := daemonOptions()
		if opts.Port == 0 {
			die("trsdk.url must have a fixed port to keep the daemon running")
		}

		if err := service.Run(service.NewKeeper(opts), serviceConfig()); err != nil {
			die("%s", err)
		}
	},
}

var daemonInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install a system service that keeps the daemon running",
	Long: `Install a system service that keeps the daemon running.

The service runs 'xferd daemon run' with your current settings file. You'll
probably need to be root.
`,
	Run: func(cmd *cobra.Command, args []string) {
		controlService("install")
	},
}

var daemonUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the system service",
	Run: func(cmd *cobra.Command, args []string) {
		controlService("stop")
		controlService("uninstall")
	},
}

func init() {
	RootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd,
		daemonRunCmd, daemonInstallCmd, daemonUninstallCmd)
}

// daemonOptions returns the daemon options from our settings file.
func daemonOptions() daemon.Options {
	opts, err := loadConfig().DaemonOptions()
	if err != nil {
		die("bad settings: %s", err)
	}

	opts.Logger = appLogger

	return opts
}

// serviceConfig describes our system service, which runs 'daemon run' with the
// settings file we're using now.
func serviceConfig() service.Config {
	path, err := config.Find(configPath)
	if err != nil {
		die("%s", err)
	}

	if path, err = filepath.Abs(path); err != nil {
		die("%s", err)
	}

	return service.Config{
		Name:        serviceName,
		DisplayName: serviceDisplayName,
		Description: serviceDescription,
		Arguments:   []string{"daemon", "run", "--config", path},
	}
}

func controlService(action string) {
	if err := service.Control(service.NewKeeper(daemonOptions()), serviceConfig(), action); err != nil {
		if action == "stop" {
			warn("%s", err)

			return
		}

		die("%s", err)
	}

	info("service %s: %s done", serviceName, action)
}
