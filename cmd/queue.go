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

	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/xferd/server"
	"github.com/wtsi-hgi/xferd/spec"
)

// options for this cmd.
var (
	queueServer string
	queueList   bool
	queueKey    string
	queueLimit  int
)

// queueCmd represents the queue command.
var queueCmd = &cobra.Command{
	Use:   "queue [transfer spec file]",
	Short: "Queue a transfer on an xferd server",
	Long: `Queue a transfer on an xferd server.

Sends the given JSON or YAML transfer spec file to an 'xferd server', which
will run the transfer when its earlier transfers are done. The key of the
queued job is printed, which you can later give to --key to see how it went.

Use --list to see the server's most recent jobs instead.

--server defaults to server.url in your settings file.
`,
	Run: func(cmd *cobra.Command, args []string) {
		url := queueServer
		if url == "" {
			url = loadConfig().ServerURL()
		}

		if url == "" {
			die("you must supply --server or configure server.url")
		}

		ctx, cancel := signalContext()
		defer cancel()

		switch {
		case queueList:
			listQueue(ctx, url)
		case queueKey != "":
			showQueued(ctx, url)
		case len(args) == 1:
			queueSpec(ctx, url, args[0])
		default:
			die("you must supply a transfer spec file, --list or --key")
		}
	},
}

func init() {
	RootCmd.AddCommand(queueCmd)

	// flags specific to this sub-command
	queueCmd.Flags().StringVarP(&queueServer, "server", "s", "",
		"base URL of the xferd server, eg. http://host:8080")
	queueCmd.Flags().BoolVar(&queueList, "list", false,
		"list the server's jobs")
	queueCmd.Flags().StringVar(&queueKey, "key", "",
		"show the job with this key")
	queueCmd.Flags().IntVarP(&queueLimit, "limit", "l", defaultHistoryLimit,
		"with --list, show at most this many jobs (0 for all)")
}

func queueSpec(ctx context.Context, url, path string) {
	sp, err := spec.Load(path)
	if err != nil {
		die("failed to load transfer spec: %s", err)
	}

	job, err := server.Queue(ctx, url, sp, path)
	if err != nil {
		die("failed to queue transfer: %s", err)
	}

	cliPrintf("%s\n", job.Key)
}

func listQueue(ctx context.Context, url string) {
	jobs, err := server.Jobs(ctx, url, queueLimit)
	if err != nil {
		die("failed to get jobs: %s", err)
	}

	renderJobs(jobs)
}

func showQueued(ctx context.Context, url string) {
	job, err := server.GetJob(ctx, url, queueKey)
	if err != nil {
		die("failed to get job: %s", err)
	}

	renderJob(job)
}
