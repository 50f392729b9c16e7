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

package fakedaemon

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/wtsi-hgi/xferd/transferd"
)

// Environment variables that tell a test binary to act as the daemon, and how
// to behave.
const (
	EnvMode     = "XFERD_FAKE_DAEMON"
	EnvStatuses = "XFERD_FAKE_STATUSES"
	EnvMessage  = "XFERD_FAKE_MESSAGE"
	EnvReject   = "XFERD_FAKE_REJECT"
	EnvJobID    = "XFERD_FAKE_JOB_ID"
	EnvBreak    = "XFERD_FAKE_BREAK"
	EnvTruncate = "XFERD_FAKE_TRUNCATE"
)

// Modes for EnvMode.
const (
	// ModeServe starts up normally and serves the protocol.
	ModeServe = "serve"

	// ModeFailStart logs StartupError and exits straight away.
	ModeFailStart = "fail-start"

	// ModeNoPort serves, but never says which port it is listening on.
	ModeNoPort = "no-port"

	// ModeSlow logs SlowStartMessage, then waits SlowStartDelay before it
	// starts serving.
	ModeSlow = "slow"
)

// SlowStartMessage is logged first by ModeSlow. It has digits after a colon
// that aren't its port.
const SlowStartMessage = "started at 10:42"

// SlowStartDelay is how long ModeSlow waits before listening.
const SlowStartDelay = 500 * time.Millisecond

// StartupError is what ModeFailStart logs before exiting.
const StartupError = "failed to start: address already in use"

// config is the subset of the daemon config file we act on.
type config struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
	LogDir  string `json:"log_directory"`
}

// Requested returns true if the environment asks this process to be a fake
// daemon. Call it from TestMain, and if true, exit with Main's return value.
func Requested() bool {
	return os.Getenv(EnvMode) != ""
}

// Env returns the environment variables that make a test binary run as a fake
// daemon in the given mode with the given behaviour.
func Env(mode string, b Behaviour) []string {
	env := []string{EnvMode + "=" + mode}

	if len(b.Statuses) > 0 {
		names := make([]string, len(b.Statuses))
		for i, s := range b.Statuses {
			names[i] = s.String()
		}

		env = append(env, EnvStatuses+"="+strings.Join(names, ","))
	}

	if b.Message != "" {
		env = append(env, EnvMessage+"="+b.Message)
	}

	if b.Reject != "" {
		env = append(env, EnvReject+"="+b.Reject)
	}

	if b.JobID != "" {
		env = append(env, EnvJobID+"="+b.JobID)
	}

	if b.Break {
		env = append(env, EnvBreak+"=1")
	}

	if b.TruncateLog {
		env = append(env, EnvTruncate+"=1")
	}

	return env
}

func behaviourFromEnv() (Behaviour, error) {
	b := Behaviour{
		Message:     os.Getenv(EnvMessage),
		Reject:      os.Getenv(EnvReject),
		JobID:       os.Getenv(EnvJobID),
		Break:       os.Getenv(EnvBreak) != "",
		TruncateLog: os.Getenv(EnvTruncate) != "",
	}

	if list := os.Getenv(EnvStatuses); list != "" {
		for _, name := range strings.Split(list, ",") {
			s, err := transferd.ParseStatus(name)
			if err != nil {
				return b, err
			}

			b.Statuses = append(b.Statuses, s)
		}
	}

	return b, nil
}

// Main runs a fake daemon process with the given command line arguments
// (expected to be --config <path>), returning the exit code.
func Main(args []string) int {
	fs := pflag.NewFlagSet("fakedaemon", pflag.ContinueOnError)
	confPath := fs.String("config", "", "path to daemon config file")

	if err := fs.Parse(args); err != nil || *confPath == "" {
		fmt.Fprintln(os.Stderr, "usage: --config <path>")

		return 2
	}

	conf, err := readConfig(*confPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if os.Getenv(EnvTruncate) != "" {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	logFile, err := os.OpenFile(filepath.Join(conf.LogDir, filepath.Base(os.Args[0])+".log"), flags, 0600)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}
	defer logFile.Close()

	logger := zerolog.New(logFile).With().Timestamp().Logger()

	return run(conf, logger)
}

func readConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	conf := &config{}

	return conf, json.Unmarshal(data, conf)
}

func run(conf *config, logger zerolog.Logger) int {
	logger.Info().Str("msg", "starting fake transfer daemon").Send()

	mode := os.Getenv(EnvMode)
	if mode == ModeFailStart {
		logger.Error().Str("msg", StartupError).Send()

		return 1
	}

	b, err := behaviourFromEnv()
	if err != nil {
		logger.Error().Str("msg", err.Error()).Send()

		return 1
	}

	if mode == ModeSlow {
		logger.Info().Str("msg", SlowStartMessage).Send()
		time.Sleep(SlowStartDelay)
	}

	lis, err := net.Listen("tcp", net.JoinHostPort(conf.Address, strconv.Itoa(conf.Port)))
	if err != nil {
		logger.Error().Str("msg", err.Error()).Send()

		return 1
	}

	s := Serve(New(b), lis)

	if mode == ModeNoPort {
		logger.Info().Str("msg", "listening on socket").Send()
	} else {
		logger.Info().Str("msg", "listening on "+s.Addr()).Send()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	s.Stop()

	return 0
}
