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
	"net"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/xferd/client"
	"github.com/wtsi-hgi/xferd/server"
)

const (
	defaultServerBind = "localhost:8080"
	serverStopTimeout = 30 * time.Second
)

// options for this cmd.
var serverBind string

// serverCmd represents the server command.
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the web server",
	Long: `Start the web server.

Starting the web server brings up a REST API that accepts transfer specs
(see 'xferd queue') and sends them one at a time through the daemon configured
in your settings file, starting it if necessary. Transfers are recorded in the
history database configured in your settings file (history.db), which is
required, and their outcomes are sent to slack if configured.

--bind defaults to the host:port of server.url in your settings file, or
` + defaultServerBind + `.

This command will block forever in the foreground; you can background it with
ctrl-z; bg. Or better yet, use the daemonize program to daemonize this. A daemon
started by the server is killed when the server stops.
`,
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig()

		db := openHistory(conf)
		if db == nil {
			die("you must configure history.db to run the server")
		}

		defer db.Close()

		bind := serverBind
		if bind == "" {
			bind = bindFromURL(conf.ServerURL())
		}

		c := client.New(clientOptions(conf))
		s := server.New(c, db, appLogger)

		if slack := newNotifier(conf); slack != nil {
			s.SetNotifier(slack)

			defer slack.Close()
		}

		lis, err := net.Listen("tcp", bind)
		if err != nil {
			die("failed to listen on %s: %s", bind, err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		stopped := make(chan struct{})

		go func() {
			defer close(stopped)

			<-ctx.Done()

			info("stopping server")

			stopCtx, stopCancel := context.WithTimeout(context.Background(), serverStopTimeout)
			defer stopCancel()

			if errStop := s.Stop(stopCtx); errStop != nil {
				warn("unclean stop: %s", errStop)
			}
		}()

		info("server started at http://%s", lis.Addr())

		if err = s.Serve(lis); err != nil {
			die("non-graceful stop: %s", err)
		}

		<-stopped
	},
}

func init() {
	RootCmd.AddCommand(serverCmd)

	// flags specific to this sub-command
	serverCmd.Flags().StringVarP(&serverBind, "bind", "b", "",
		"host:port to listen on")
}

// bindFromURL returns the host:port of the given URL, or our default.
func bindFromURL(raw string) string {
	if raw == "" {
		return defaultServerBind
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return defaultServerBind
	}

	return u.Host
}
