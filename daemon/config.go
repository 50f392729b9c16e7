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

// package daemon supervises a local transfer daemon process: it writes the
// daemon's config file, starts it, confirms it came up (discovering the port
// it chose if need be), and kills it again, but only if it started it.

package daemon

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/inconshreveable/log15"
)

const (
	// DefaultGrace is how long we give a freshly started daemon to come up.
	DefaultGrace = 2 * time.Second

	// DefaultAddress is where the daemon listens if not told otherwise.
	DefaultAddress = "127.0.0.1"

	// DefaultLogLevel is the daemon log level if not told otherwise.
	DefaultLogLevel = "info"

	// EngineLogFile is the name of the log the transfer engine writes in the
	// log directory.
	EngineLogFile = "aspera-scp-transfer.log"

	confSuffix = ".conf"
	outSuffix  = ".out"
	errSuffix  = ".err"
	logSuffix  = ".log"

	fileMode = 0644
)

// engineLevels maps our engine log level names to the numeric levels the
// transfer engine understands.
var engineLevels = map[string]int{ //nolint:gochecknoglobals
	"info":  0,
	"debug": 1,
	"trace": 2,
}

// Error is returned for invalid Options.
type Error struct {
	Msg string
	Val string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Msg, e.Val)
}

const (
	ErrInvalidEngineLevel = "invalid transfer engine log level"
	ErrNoBinary           = "no daemon binary specified"
)

// EngineLevel returns the numeric transfer engine log level for the given
// name, which must be "info", "debug" or "trace"; blank means "info".
func EngineLevel(name string) (int, error) {
	if name == "" {
		return 0, nil
	}

	level, ok := engineLevels[name]
	if !ok {
		return 0, Error{Msg: ErrInvalidEngineLevel, Val: name}
	}

	return level, nil
}

// Runtime says which transfer engine binaries the daemon should use.
type Runtime struct {
	// Embedded uses the engine bundled with the daemon, ignoring BinDir and
	// EtcDir.
	Embedded bool
	BinDir   string
	EtcDir   string
}

// Options describe the daemon to supervise.
type Options struct {
	// Binary is the path to the daemon executable.
	Binary string

	// Address and Port are where the daemon should listen. Port 0 lets it
	// pick a free port, which we then discover from its log.
	Address string
	Port    int

	// LogDir holds the daemon's config, logs and captured output. Defaults
	// to the system temp dir.
	LogDir string

	// LogLevel is the daemon's own log level.
	LogLevel string

	// EngineLogLevel is the transfer engine log level: info, debug or trace.
	EngineLogLevel string

	Runtime Runtime

	// Grace bounds how long we wait for a started daemon to come up.
	Grace time.Duration

	// Env holds extra KEY=value environment variables for the daemon.
	Env []string

	Logger log15.Logger
}

func (o Options) withDefaults() Options {
	if o.Address == "" {
		o.Address = DefaultAddress
	}

	if o.LogDir == "" {
		o.LogDir = os.TempDir()
	}

	if o.LogLevel == "" {
		o.LogLevel = DefaultLogLevel
	}

	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}

	if o.Logger == nil {
		o.Logger = log15.New()
		o.Logger.SetHandler(log15.DiscardHandler())
	}

	return o
}

// Addr returns the host:port the options say the daemon listens on.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Address, strconv.Itoa(o.Port))
}

// Name returns the daemon's name, the basename of its Binary, which its files
// are named after.
func (o Options) Name() string {
	return filepath.Base(o.Binary)
}

func (o Options) path(suffix string) string {
	return filepath.Join(o.LogDir, o.Name()+suffix)
}

// ConfigPath returns the path of the config file we write for the daemon.
func (o Options) ConfigPath() string { return o.path(confSuffix) }

// OutPath returns the path its stdout is captured to.
func (o Options) OutPath() string { return o.path(outSuffix) }

// ErrPath returns the path its stderr is captured to.
func (o Options) ErrPath() string { return o.path(errSuffix) }

// LogPath returns the path of the log the daemon itself writes.
func (o Options) LogPath() string { return o.path(logSuffix) }

// EngineLogPath returns the path of the transfer engine's activity log.
func (o Options) EngineLogPath() string {
	return filepath.Join(o.LogDir, EngineLogFile)
}

type fileConfig struct {
	Address      string      `json:"address"`
	Port         int         `json:"port"`
	LogDirectory string      `json:"log_directory"`
	LogLevel     string      `json:"log_level"`
	FaspRuntime  faspRuntime `json:"fasp_runtime"`
}

type faspRuntime struct {
	UseEmbedded bool         `json:"use_embedded"`
	UserDefined *userDefined `json:"user_defined,omitempty"`
	Log         engineLog    `json:"log"`
}

type userDefined struct {
	Bin string `json:"bin"`
	Etc string `json:"etc"`
}

type engineLog struct {
	Dir   string `json:"dir"`
	Level int    `json:"level"`
}

// configJSON returns the contents of the daemon config file.
func (o Options) configJSON() ([]byte, error) {
	level, err := EngineLevel(o.EngineLogLevel)
	if err != nil {
		return nil, err
	}

	fc := fileConfig{
		Address:      o.Address,
		Port:         o.Port,
		LogDirectory: o.LogDir,
		LogLevel:     o.LogLevel,
		FaspRuntime: faspRuntime{
			UseEmbedded: o.Runtime.Embedded,
			Log:         engineLog{Dir: o.LogDir, Level: level},
		},
	}

	if !o.Runtime.Embedded {
		fc.FaspRuntime.UserDefined = &userDefined{Bin: o.Runtime.BinDir, Etc: o.Runtime.EtcDir}
	}

	return json.MarshalIndent(fc, "", "  ")
}

// WriteConfig writes the daemon's config file to ConfigPath(), returning the
// path.
func (o Options) WriteConfig() (string, error) {
	o = o.withDefaults()

	data, err := o.configJSON()
	if err != nil {
		return "", err
	}

	if err = os.MkdirAll(o.LogDir, 0755); err != nil {
		return "", err
	}

	path := o.ConfigPath()

	o.Logger.Debug("writing daemon config", "path", path, "config", string(data))

	return path, os.WriteFile(path, data, fileMode)
}
