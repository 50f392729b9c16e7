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

package daemon

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/wtsi-hgi/xferd/errs"
)

const maxLogLineLength = 1024 * 1024

var portRegex = regexp.MustCompile(`:(\d+)`)

// ParsePort extracts the port a daemon said it is listening on from one of its
// log lines. Lines are JSON objects whose "msg" field ends with host:port; for
// lines that aren't JSON we look at the whole line. The last :digits wins. No
// port gives an errs.PortDiscoveryFailed error.
func ParsePort(line string) (int, error) {
	text := line

	var entry struct {
		Msg *string `json:"msg"`
	}

	if err := json.Unmarshal([]byte(line), &entry); err == nil && entry.Msg != nil {
		text = *entry.Msg
	}

	matches := portRegex.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0, errs.New(errs.PortDiscoveryFailed, strings.TrimSpace(line))
	}

	port, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil || port <= 0 || port > 65535 {
		return 0, errs.New(errs.PortDiscoveryFailed, strings.TrimSpace(line))
	}

	return port, nil
}

// LastLine returns the last non-blank line of the file at path. A missing file
// has no last line.
func LastLine(path string) (string, error) {
	return lastLineFrom(path, 0)
}

// lastLineFrom is like LastLine, but ignores everything before offset bytes.
func lastLineFrom(path string, offset int64) (string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	defer f.Close()

	if offset > 0 {
		if _, err = f.Seek(offset, io.SeekStart); err != nil {
			return "", err
		}
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLogLineLength)

	var last string

	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}

	return last, scanner.Err()
}

const logMarkTail = 256

// logMark remembers where a log file ended, so that we can later read just what
// was written after that point.
type logMark struct {
	info os.FileInfo
	tail []byte
}

// markLog marks the current end of the log at path, which need not exist.
func markLog(path string) logMark {
	f, err := os.Open(path)
	if err != nil {
		return logMark{}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return logMark{}
	}

	tail, err := readTail(f, info.Size())
	if err != nil {
		return logMark{}
	}

	return logMark{info: info, tail: tail}
}

func readTail(f *os.File, end int64) ([]byte, error) {
	start := max(end-logMarkTail, 0)
	tail := make([]byte, end-start)

	if _, err := f.ReadAt(tail, start); err != nil {
		return nil, err
	}

	return tail, nil
}

// offset returns where the lines written since the mark start in the log at
// path. If the log has since been truncated, or replaced by a new file, that is
// the start of the file.
func (m logMark) offset(path string) int64 {
	if m.info == nil || m.info.Size() == 0 {
		return 0
	}

	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !os.SameFile(m.info, info) || info.Size() < m.info.Size() {
		return 0
	}

	tail, err := readTail(f, m.info.Size())
	if err != nil || !bytes.Equal(tail, m.tail) {
		return 0
	}

	return m.info.Size()
}
