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
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/xferd/history"
)

const defaultHistoryLimit = 20

// options for this cmd.
var historyLimit int

// historyCmd represents the history command.
var historyCmd = &cobra.Command{
	Use:   "history [job key]",
	Short: "Show past transfers",
	Long: `Show past transfers.

Lists the most recent transfers recorded in the history database configured in
your settings file (history.db), most recent first. Use --limit 0 to see them
all.

Give a job key to see the full details of that job.
`,
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig()

		db := openHistory(conf)
		if db == nil {
			die("no history.db in your settings file")
		}

		defer db.Close()

		if len(args) == 1 {
			job, err := db.Get(args[0])
			if err != nil {
				die("%s", err)
			}

			renderJob(job)

			return
		}

		jobs, err := db.List(historyLimit)
		if err != nil {
			die("failed to list transfers: %s", err)
		}

		renderJobs(jobs)
	},
}

func init() {
	RootCmd.AddCommand(historyCmd)

	// flags specific to this sub-command
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", defaultHistoryLimit,
		"show at most this many transfers (0 for all)")
}

// jobStatus returns the history status corresponding to a transfer error.
func jobStatus(err error) string {
	if err != nil {
		return history.StatusFailed
	}

	return history.StatusCompleted
}

// statusColour returns the given history status in an appropriate colour.
func statusColour(status string) string {
	switch status {
	case history.StatusCompleted:
		return color.GreenString(status)
	case history.StatusFailed:
		return color.RedString(status)
	case history.StatusRunning:
		return color.CyanString(status)
	default:
		return color.YellowString(status)
	}
}

func humanTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return humanize.Time(t)
}

func humanDuration(job *history.Job) string {
	if job.Started.IsZero() {
		return "-"
	}

	return job.Duration().Round(time.Second).String()
}

// renderJobs prints a table of jobs.
func renderJobs(jobs []*history.Job) {
	if len(jobs) == 0 {
		cliPrintf("no transfers\n")

		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Origin", "Transfer", "Status", "Spec size", "Queued", "Took"})

	for _, job := range jobs {
		table.Append([]string{
			job.Key,
			job.Origin,
			job.TransferID,
			statusColour(job.Status),
			humanize.IBytes(uint64(job.Size)), //nolint:gosec
			humanTime(job.Queued),
			humanDuration(job),
		})
	}

	table.Render()
}

// renderJob prints the details of a single job.
func renderJob(job *history.Job) {
	cliPrintf("          key: %s\n", job.Key)
	cliPrintf("  fingerprint: %s\n", job.Fingerprint)
	cliPrintf("       origin: %s\n", job.Origin)
	cliPrintf("    spec size: %s\n", humanize.IBytes(uint64(job.Size))) //nolint:gosec
	cliPrintf("       status: %s\n", statusColour(job.Status))
	cliPrintf("     transfer: %s\n", job.TransferID)
	cliPrintf("       daemon: %s\n", job.Daemon)
	cliPrintf("       queued: %s\n", humanTime(job.Queued))
	cliPrintf("      started: %s\n", humanTime(job.Started))
	cliPrintf("     finished: %s\n", humanTime(job.Finished))
	cliPrintf("         took: %s\n", humanDuration(job))

	if job.Error != "" {
		cliPrintf("        error: %s\n", job.Error)
	}
}
