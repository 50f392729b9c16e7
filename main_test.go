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

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phayes/freeport"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/wtsi-hgi/xferd/internal/fakedaemon"
	"github.com/wtsi-hgi/xferd/transferd"
)

const app = "xferd"

var appPath string //nolint:gochecknoglobals

// TestMain builds ourself, then runs our tests of the built binary, which uses
// this test binary as its transfer daemon. It's a full e2e integration test.
func TestMain(m *testing.M) {
	if fakedaemon.Requested() {
		os.Exit(fakedaemon.Main(os.Args[1:]))
	}

	dir, err := os.MkdirTemp("", app+"-e2e")
	if err != nil {
		failMainTest(err.Error())
	}

	appPath = filepath.Join(dir, app)

	if out, errb := exec.Command("go", "build", "-o", appPath, ".").CombinedOutput(); errb != nil {
		os.RemoveAll(dir)
		failMainTest(errb.Error() + "\n" + string(out))
	}

	exitCode := m.Run()

	os.RemoveAll(dir)
	os.Exit(exitCode)
}

func failMainTest(err string) {
	fmt.Println(err) //nolint:forbidigo
	os.Exit(2)
}

// prepareConfig writes a settings file that has our daemon on the given port,
// returning its path.
func prepareConfig(t *testing.T, port int) string {
	t.Helper()

	exe, err := os.Executable()
	So(err, ShouldBeNil)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := fmt.Sprintf(`trsdk:
  url: grpc://127.0.0.1:%d
  level: debug
  ascp_level: info
  embedded: true
  connect_timeout: 5s
paths:
  daemon: %s
misc:
  log_dir: %s
history:
  db: %s
`, port, exe, filepath.Join(dir, "logs"), filepath.Join(dir, "history.db"))

	So(os.WriteFile(path, []byte(content), 0600), ShouldBeNil)

	return path
}

func writeSpec(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)

	So(os.WriteFile(path, []byte(`{"remote_host": "demo.example.com", "direction": "send", "paths": []}`),
		0600), ShouldBeNil)

	return path
}

// runBinary runs our built binary with the given args, with the given extra
// environment variables, returning its exit code and combined output.
func runBinary(t *testing.T, env []string, args ...string) (int, string) {
	t.Helper()

	cmd := exec.Command(appPath, args...)
	cmd.Env = append(os.Environ(), env...)

	outB, err := cmd.CombinedOutput()
	if err != nil {
		t.Logf("binary gave error: %s\noutput was: %s\n", err, string(outB))
	}

	return cmd.ProcessState.ExitCode(), strings.TrimRight(string(outB), "\n")
}

func TestSend(t *testing.T) {
	Convey("Given a settings file with a daemon on any port", t, func() {
		conf := prepareConfig(t, 0)
		specPath := writeSpec(t, "transfer.json")

		Convey("send starts the daemon, transfers and records the job", func() {
			env := fakedaemon.Env(fakedaemon.ModeServe, fakedaemon.Behaviour{JobID: "abc123"})

			code, out := runBinary(t, env, "send", "--config", conf, specPath)
			So(code, ShouldEqual, 0)
			So(out, ShouldContainSubstring, "transfer abc123 completed")

			code, out = runBinary(t, nil, "history", "--config", conf)
			So(code, ShouldEqual, 0)
			So(out, ShouldContainSubstring, "abc123")
			So(out, ShouldContainSubstring, "completed")
			So(out, ShouldContainSubstring, specPath)
		})

		Convey("send can add files to the spec", func() {
			fofn := filepath.Join(t.TempDir(), "files.txt")
			So(os.WriteFile(fofn, []byte("/a/file1\n/a/file2\n"), 0600), ShouldBeNil)

			env := fakedaemon.Env(fakedaemon.ModeServe, fakedaemon.Behaviour{})

			code, out := runBinary(t, env, "send", "--config", conf, "--files", fofn, specPath)
			So(code, ShouldEqual, 0)
			So(out, ShouldContainSubstring, "added 2 files")
		})

		Convey("send exits non-zero with the reason when the transfer fails", func() {
			env := fakedaemon.Env(fakedaemon.ModeServe, fakedaemon.Behaviour{
				Statuses: []transferd.TransferStatus{transferd.StatusQueued, transferd.StatusFailed},
				Message:  "disk full",
			})

			code, out := runBinary(t, env, "send", "--config", conf, specPath)
			So(code, ShouldEqual, 1)
			So(out, ShouldContainSubstring, "disk full")

			code, out = runBinary(t, nil, "history", "--config", conf)
			So(code, ShouldEqual, 0)
			So(out, ShouldContainSubstring, "failed")
		})

		Convey("send reports a daemon that fails to start", func() {
			env := fakedaemon.Env(fakedaemon.ModeFailStart, fakedaemon.Behaviour{})

			code, out := runBinary(t, env, "send", "--config", conf, specPath)
			So(code, ShouldEqual, 1)
			So(out, ShouldContainSubstring, fakedaemon.StartupError)
		})

		Convey("send needs a spec", func() {
			code, out := runBinary(t, nil, "send", "--config", conf)
			So(code, ShouldEqual, 1)
			So(out, ShouldContainSubstring, "you must supply one of a transfer spec file or --url")
		})

		Convey("batch sends many specs with their own daemons", func() {
			env := fakedaemon.Env(fakedaemon.ModeServe, fakedaemon.Behaviour{})
			other := writeSpec(t, "other.json")

			code, out := runBinary(t, env, "batch", "--config", conf, specPath, other)
			So(code, ShouldEqual, 0)
			So(out, ShouldContainSubstring, "transfer of "+specPath+" completed")
			So(out, ShouldContainSubstring, "transfer of "+other+" completed")
		})
	})
}

func TestDaemon(t *testing.T) {
	Convey("Given a settings file with a daemon on a fixed port", t, func() {
		port, err := freeport.GetFreePort()
		So(err, ShouldBeNil)

		conf := prepareConfig(t, port)
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		env := fakedaemon.Env(fakedaemon.ModeServe, fakedaemon.Behaviour{JobID: "kept"})

		Convey("You can start, check and stop the daemon", func() {
			code, out := runBinary(t, env, "daemon", "status", "--config", conf)
			So(code, ShouldEqual, 0)
			So(out, ShouldContainSubstring, "not running")

			code, out = runBinary(t, env, "daemon", "start", "--config", conf)
			So(code, ShouldEqual, 0)
			So(out, ShouldContainSubstring, "daemon started at "+addr)

			code, out = runBinary(t, env, "daemon", "status", "--config", conf)
			So(code, ShouldEqual, 0)
			So(out, ShouldContainSubstring, "running (pid")
			So(out, ShouldContainSubstring, "responding at "+addr)

			Convey("send uses the running daemon and leaves it running", func() {
				code, out = runBinary(t, nil, "send", "--config", conf, writeSpec(t, "t.json"))
				So(code, ShouldEqual, 0)
				So(out, ShouldContainSubstring, "transfer kept completed")

				code, out = runBinary(t, nil, "daemon", "status", "--config", conf)
				So(code, ShouldEqual, 0)
				So(out, ShouldContainSubstring, "responding at "+addr)
			})

			code, out = runBinary(t, nil, "daemon", "stop", "--config", conf)
			So(code, ShouldEqual, 0)
			So(out, ShouldContainSubstring, "daemon stopped")

			code, out = runBinary(t, nil, "daemon", "stop", "--config", conf)
			So(code, ShouldEqual, 0)
			So(out, ShouldContainSubstring, "daemon is not running")
		})
	})
}
