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
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/xferd/client"
	"github.com/wtsi-hgi/xferd/spec"
	"github.com/wtsi-hgi/xferd/transferd"
)

const defaultBatchWorkers = 2

// options for this cmd.
var batchWorkers int

// batchResult is the outcome of sending one spec file.
type batchResult struct {
	path       string
	transferID string
	err        error
}

// batchCmd represents the batch command.
var batchCmd = &cobra.Command{
	Use:   "batch transfer_spec_file...",
	Short: "Send many transfer specs in parallel",
	Long: `Send many transfer specs in parallel.

Each of the given JSON or YAML transfer spec files is sent by its own newly
started daemon, which picks its own port, so that --workers transfers can run at
once. Each daemon is killed when its transfer finishes. Daemon files for worker
N go in a batch.N sub-directory of your configured log_dir.

A table of outcomes is printed at the end, and we exit non-zero if any transfer
failed.
`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			die("you must supply at least one transfer spec file")
		}

		if batchWorkers < 1 {
			die("--workers must be at least 1")
		}

		conf := loadConfig()
		base := clientOptions(conf)

		specs := make([]spec.Spec, len(args))

		for i, path := range args {
			sp, err := spec.Load(path)
			if err != nil {
				die("failed to load transfer spec %s: %s", path, err)
			}

			specs[i] = sp
		}

		ctx, cancel := signalContext()
		defer cancel()

		results := make([]batchResult, len(args))
		pool := workerpool.New(batchWorkers)

		var mu sync.Mutex

		for i, path := range args {
			opts := batchOptions(base, i)

			pool.Submit(func() {
				c := client.New(opts)
				transferID, err := c.SubmitAndWait(ctx, specs[i])

				if err != nil {
					warn("transfer of %s failed: %s", path, err)
				} else {
					info("transfer of %s completed", path)
				}

				mu.Lock()
				results[i] = batchResult{path: path, transferID: transferID, err: err}
				mu.Unlock()
			})
		}

		pool.StopWait()

		if failed := renderBatchResults(results); failed > 0 {
			die("%d of %d transfers failed", failed, len(results))
		}
	},
}

func init() {
	RootCmd.AddCommand(batchCmd)

	// flags specific to this sub-command
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", defaultBatchWorkers,
		"number of transfers to run at once")
}

// batchOptions returns a copy of base for the ith spec: a daemon of its own on
// any port, with its own log directory, killed afterwards.
func batchOptions(base client.Options, i int) client.Options {
	opts := base
	opts.Daemon.Port = 0
	opts.Daemon.LogDir = filepath.Join(base.Daemon.LogDir, fmt.Sprintf("batch.%d", i))
	opts.ShutdownAfter = true
	opts.Logger = appLogger.New("spec", i)
	opts.Daemon.Logger = opts.Logger
	opts.Progress = func(resp *transferd.TransferResponse) {
		opts.Logger.Debug("transfer status", "transfer", resp.TransferID, "status", resp.Status)
	}

	return opts
}

// renderBatchResults prints a table of results, returning the number that
// failed.
func renderBatchResults(results []batchResult) int {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Spec", "Transfer", "Status", "Error"})

	failed := 0

	for _, r := range results {
		status, errMsg := statusColour(jobStatus(r.err)), ""

		if r.err != nil {
			failed++
			errMsg = r.err.Error()
		}

		table.Append([]string{r.path, r.transferID, status, errMsg})
	}

	table.Render()

	return failed
}
