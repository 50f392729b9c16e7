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

// package cmd is the cobra file that enables subcommands and handles
// command-line args.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/inconshreveable/log15"
	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/xferd/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileMaxSizeMB  = 10
	logFileMaxBackups = 3
)

// appLogger is used for logging events in our commands.
var appLogger = log15.New() //nolint:gochecknoglobals

// global options.
var (
	configPath string
	debug      bool
	logPath    string
)

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "xferd",
	Short: "xferd submits file transfers to a transfer daemon",
	Long: `xferd submits file transfers to a transfer daemon.

A transfer is described by a transfer spec: a JSON or YAML document saying where
files go, that is handed to the daemon as-is. xferd connects to the daemon given
in your settings file, starting it if it isn't already running, submits the
spec, and waits for the transfer to finish, eg.:

xferd send --config config.yaml transfer.json

The settings file is found using --config, else the ` + config.EnvConfig + ` environment
variable, else ` + config.DefaultConfigRel + ` relative to the ` + config.EnvTopDir + ` environment
variable. A .env file in the current directory is loaded first, so can set
those variables. The settings file looks like:

trsdk:
  url: grpc://127.0.0.1:55002   # port 0 lets the daemon pick its own
  level: info
  ascp_level: info              # info, debug or trace
  embedded: true
  connect_timeout: 5s
  http_fallback: disable        # enable, disable, or spec to leave it alone
paths:
  daemon: bin/asperatransferd   # relative to ` + config.EnvTopDir + `
misc:
  log_dir: /tmp
history:
  db: /path/to/history.db       # optional record of transfers
slack:
  token: xoxb-...               # optional notification of outcomes
  channel: C12345
server:
  url: http://host:8080         # used by the queue sub-command
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setLogging()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once to
// the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		die("%s", err)
	}
}

func init() {
	// global flags
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to settings file")
	RootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"log debug messages")
	RootCmd.PersistentFlags().StringVar(&logPath, "logfile", "",
		"log to this (rotated) file instead of STDERR")
}

// setLogging makes appLogger log at info level (or debug with --debug) to
// STDERR, or to --logfile.
func setLogging() {
	lvl := log15.LvlInfo
	if debug {
		lvl = log15.LvlDebug
	}

	h := log15.StderrHandler

	if logPath != "" {
		h = log15.StreamHandler(&lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    logFileMaxSizeMB,
			MaxBackups: logFileMaxBackups,
		}, log15.LogfmtFormat())
	}

	appLogger.SetHandler(log15.LvlFilterHandler(lvl, h))
}

// loadConfig loads .env and then our settings file, dying on failure.
func loadConfig() *config.Config {
	if err := config.LoadEnv(); err != nil {
		warn("could not load %s: %s", config.DotEnv, err)
	}

	path, err := config.Find(configPath)
	if err != nil {
		die("%s", err)
	}

	conf, err := config.Load(path)
	if err != nil {
		die("failed to load settings: %s", err)
	}

	appLogger.Debug("loaded settings", "path", conf.File)

	return conf
}

// signalContext returns a context that is cancelled when we get SIGINT or
// SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// cliPrintf outputs the message to STDOUT.
func cliPrintf(msg string, a ...any) {
	fmt.Fprintf(os.Stdout, msg, a...)
}

// info is a convenience to log a message at the Info level.
func info(msg string, a ...any) {
	appLogger.Info(fmt.Sprintf(msg, a...))
}

// warn is a convenience to log a message at the Warn level.
func warn(msg string, a ...any) {
	appLogger.Warn(fmt.Sprintf(msg, a...))
}

// die is a convenience to log a message at the Error level and exit non zero.
func die(msg string, a ...any) {
	appLogger.Error(fmt.Sprintf(msg, a...))
	os.Exit(1)
}
