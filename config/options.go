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

package config

import (
	"net/url"
	"os"

	"github.com/inconshreveable/log15"
	"github.com/wtsi-hgi/xferd/client"
	"github.com/wtsi-hgi/xferd/daemon"
)

// DaemonOptions returns the daemon.Options described by the trsdk, paths and
// misc sections.
//
//	trsdk:
//	  url: grpc://127.0.0.1:55002  # port 0 lets the daemon pick
//	  level: debug                 # daemon log level
//	  ascp_level: info             # engine log level: info, debug or trace
//	  embedded: true               # use the daemon's own transfer engine
//	paths:
//	  daemon: bin/asperatransferd
//	  engine_bin: bin              # only when not embedded
//	  engine_etc: etc
//	misc:
//	  log_dir: /tmp
func (c *Config) DaemonOptions() (daemon.Options, error) {
	opts := daemon.Options{
		LogLevel:       c.String(SectionDaemon, "level", daemon.DefaultLogLevel),
		EngineLogLevel: c.String(SectionDaemon, "ascp_level", "info"),
		LogDir:         c.String(SectionMisc, "log_dir", os.TempDir()),
		Runtime:        daemon.Runtime{Embedded: c.ParamBool(SectionDaemon, "embedded", true)},
	}

	if _, err := daemon.EngineLevel(opts.EngineLogLevel); err != nil {
		return opts, err
	}

	rawURL, err := c.ParamStr(SectionDaemon, "url")
	if err != nil {
		return opts, err
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return opts, err
	}

	opts.Address = u.Hostname()

	opts.Port, err = PortOrDefault(u, DefaultPort)
	if err != nil {
		return opts, err
	}

	opts.Binary, err = c.Path("daemon")
	if err != nil {
		return opts, err
	}

	if !opts.Runtime.Embedded {
		if opts.Runtime.BinDir, err = c.Path("engine_bin"); err != nil {
			return opts, err
		}

		if opts.Runtime.EtcDir, err = c.Path("engine_etc"); err != nil {
			return opts, err
		}
	}

	return opts, nil
}

// ClientOptions returns the client.Options described by our settings, with
// the given logger. Besides the DaemonOptions() settings, trsdk can have:
//
//	trsdk:
//	  connect_timeout: 5s
//	  http_fallback: disable  # or enable, or spec to leave specs alone
func (c *Config) ClientOptions(logger log15.Logger) (client.Options, error) {
	dopts, err := c.DaemonOptions()
	if err != nil {
		return client.Options{}, err
	}

	dopts.Logger = logger

	timeout, err := c.Duration(SectionDaemon, "connect_timeout", 0)
	if err != nil {
		return client.Options{}, err
	}

	fallback, err := client.ParseFallbackPolicy(c.String(SectionDaemon, "http_fallback", ""))
	if err != nil {
		return client.Options{}, err
	}

	return client.Options{
		Daemon:         dopts,
		ConnectTimeout: timeout,
		HTTPFallback:   fallback,
		Logger:         logger,
	}, nil
}

// SlackSettings returns the slack token and channel, which are blank if not
// configured.
func (c *Config) SlackSettings() (token, channel string) {
	return c.String(SectionSlack, "token", ""), c.String(SectionSlack, "channel", "")
}

// HistoryDB returns the path of the job history database, or blank if not
// configured.
func (c *Config) HistoryDB() string {
	return c.String(SectionHistory, "db", "")
}

// ServerURL returns the base URL of an xferd server, or blank if not
// configured.
func (c *Config) ServerURL() string {
	return c.String(SectionServer, "url", "")
}
