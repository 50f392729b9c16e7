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
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/xferd/client"
	"github.com/wtsi-hgi/xferd/config"
	"github.com/wtsi-hgi/xferd/internal/scanner"
	"github.com/wtsi-hgi/xferd/rest"
	"github.com/wtsi-hgi/xferd/spec"
	"github.com/wtsi-hgi/xferd/transferd"
	"golang.org/x/term"
)

const passwordEnvKey = "XFERD_PASSWORD"

// options for this cmd.
var (
	sendURL      string
	sendMethod   string
	sendUser     string
	sendToken    string
	sendPick     string
	sendInsecure bool
	sendFiles    string
	sendNull     bool
	sendPathsKey string
	sendFallback string
	sendType     string
	sendKeep     bool
)

// sendCmd represents the send command.
var sendCmd = &cobra.Command{
	Use:   "send [transfer spec file]",
	Short: "Send files by submitting a transfer spec",
	Long: `Send files by submitting a transfer spec.

Give the path to a JSON or YAML transfer spec file, or get the spec from the
REST API of your file transfer service with --url (authenticating with --user,
when you'll be asked for a password unless ` + passwordEnvKey + ` is set, or --token).
Use --pick to say where in the response the spec is, eg.
--pick transfer_specs.0.transfer_spec

Files to send can be added to the spec with --files, a file containing one path
per line ('-' for STDIN; null-terminated with -0). They're added as
{"source": path} entries of the list at --paths_key.

The daemon in your settings file is started if it isn't already running. We
wait for the transfer to finish, exiting non-zero if it fails. A daemon we
started is killed afterwards, unless you --keep it. A daemon that was already
running is left alone.

The spec's http_fallback is set according to --fallback (default from your
settings file trsdk.http_fallback, itself defaulting to disable); use 'spec' to
leave the spec's own setting in place.
`,
	Run: func(cmd *cobra.Command, args []string) {
		if (len(args) == 1) == (sendURL != "") {
			die("you must supply one of a transfer spec file or --url")
		}

		conf := loadConfig()
		opts := clientOptions(conf)
		opts.ShutdownAfter = !sendKeep

		sp, origin := sendSpec(args)

		addSourceFiles(sp)

		rec := newRecorder(conf)
		defer rec.close()

		rec.queued(sp, origin)

		var c *client.Client

		opts.Progress = func(resp *transferd.TransferResponse) {
			rec.progress(resp, c.Addr())
		}

		c = client.New(opts)

		ctx, cancel := signalContext()
		defer cancel()

		transferID, err := c.SubmitAndWait(ctx, sp)
		rec.finished(transferID, err)

		if err != nil {
			rec.close()
			die("transfer %s failed: %s", transferID, err)
		}

		if sendKeep && c.Supervisor().Owned() {
			if errp := c.Supervisor().WritePIDFile(); errp != nil {
				warn("failed to write pid file: %s", errp)
			}

			info("daemon left running at %s (pid %d)", c.Addr(), c.Supervisor().PID())
		}

		cliPrintf("transfer %s completed\n", transferID)
	},
}

func init() {
	RootCmd.AddCommand(sendCmd)

	// flags specific to this sub-command
	sendCmd.Flags().StringVar(&sendURL, "url", "",
		"get the transfer spec from this REST API URL")
	sendCmd.Flags().StringVar(&sendMethod, "method", "",
		"HTTP method for --url (default GET)")
	sendCmd.Flags().StringVarP(&sendUser, "user", "u", "",
		"username for basic auth with --url")
	sendCmd.Flags().StringVar(&sendToken, "token", "",
		"bearer token for --url")
	sendCmd.Flags().StringVar(&sendPick, "pick", "",
		"dot-separated path to the transfer spec in the --url response")
	sendCmd.Flags().BoolVar(&sendInsecure, "insecure", false,
		"don't verify the certificate of --url")
	sendCmd.Flags().StringVarP(&sendFiles, "files", "f", "",
		"path to file with one path to send per line ('-' for STDIN)")
	sendCmd.Flags().BoolVarP(&sendNull, "null", "0", false,
		"input paths are terminated by a null character instead of a new line")
	sendCmd.Flags().StringVarP(&sendPathsKey, "paths_key", "p", "paths",
		"dot-separated path to the list in the spec that --files are added to")
	sendCmd.Flags().StringVar(&sendFallback, "fallback", "",
		"http fallback policy: enable, disable or spec")
	sendCmd.Flags().StringVar(&sendType, "type", "",
		"transfer type (default "+transferd.FileRegular.String()+")")
	sendCmd.Flags().BoolVarP(&sendKeep, "keep", "k", false,
		"leave a daemon we started running afterwards")
}

// clientOptions returns the client.Options from our settings, overridden by
// --fallback and --type.
func clientOptions(conf *config.Config) client.Options {
	opts, err := conf.ClientOptions(appLogger)
	if err != nil {
		die("bad settings: %s", err)
	}

	if sendFallback != "" {
		opts.HTTPFallback, err = client.ParseFallbackPolicy(sendFallback)
		if err != nil {
			die("%s", err)
		}
	}

	if sendType != "" {
		opts.TransferType, err = transferd.ParseTransferType(sendType)
		if err != nil {
			die("%s", err)
		}
	}

	return opts
}

// sendSpec loads the transfer spec from the given file, or fetches it from
// --url. Also returns where it came from.
func sendSpec(args []string) (spec.Spec, string) {
	if len(args) == 1 {
		sp, err := spec.Load(args[0])
		if err != nil {
			die("failed to load transfer spec: %s", err)
		}

		return sp, args[0]
	}

	ctx, cancel := signalContext()
	defer cancel()

	sp, err := rest.Fetch(ctx, rest.Request{
		URL:      sendURL,
		Method:   sendMethod,
		Username: sendUser,
		Password: sendPassword(),
		Token:    sendToken,
		Insecure: sendInsecure,
		Pick:     sendPick,
	})
	if err != nil {
		die("failed to get transfer spec: %s", err)
	}

	return sp, sendURL
}

// sendPassword returns the password for --user, from the environment or by
// asking for it.
func sendPassword() string {
	if sendUser == "" {
		return ""
	}

	if pass := os.Getenv(passwordEnvKey); pass != "" {
		return pass
	}

	if !term.IsTerminal(syscall.Stdin) {
		die("you must set %s when not running interactively", passwordEnvKey)
	}

	cliPrintf("Password: ")

	passwordB, err := term.ReadPassword(syscall.Stdin)
	if err != nil {
		die("couldn't read password: %s", err)
	}

	cliPrintf("\n")

	return string(passwordB)
}

// addSourceFiles adds the --files to the spec.
func addSourceFiles(sp spec.Spec) {
	if sendFiles == "" {
		return
	}

	files, err := scanner.CollectFile(sendFiles, sendNull)
	if err != nil {
		die("failed to read --files: %s", err)
	}

	if err = sp.AddSources(sendPathsKey, files); err != nil {
		die("failed to add files to transfer spec: %s", err)
	}

	info("added %d files to the transfer spec", len(files))
}
