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

// Package scanner reads lists of file paths, one per line or null-terminated,
// as given to the send command.
package scanner

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// StdinName is the path that means "read from STDIN".
const StdinName = "-"

// ScanNulls is a bufio.SplitFunc like bufio.ScanLines, but it
// splits on null characters instead of newlines.
func ScanNulls(
	data []byte, atEOF bool,
) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\000'); i >= 0 {
		return i + 1, data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}

	return 0, nil, nil
}

// Splitter returns a bufio.SplitFunc that splits on newlines by default, or on
// null characters if onNull is true.
func Splitter(onNull bool) bufio.SplitFunc {
	if onNull {
		return ScanNulls
	}

	return bufio.ScanLines
}

// Scan calls cb for each entry read from r. With newline splitting, entries
// are trimmed of surrounding white space, and blank entries are skipped. If cb
// returns an error, scanning stops and that error is returned.
func Scan(r io.Reader, onNull bool, cb func(entry string) error) error {
	s := bufio.NewScanner(r)
	s.Split(Splitter(onNull))

	for s.Scan() {
		entry := s.Text()
		if !onNull {
			entry = strings.TrimSpace(entry)
		}

		if entry == "" {
			continue
		}

		if err := cb(entry); err != nil {
			return err
		}
	}

	return s.Err()
}

// Collect returns all the entries read from r.
func Collect(r io.Reader, onNull bool) ([]string, error) {
	var entries []string

	err := Scan(r, onNull, func(entry string) error {
		entries = append(entries, entry)

		return nil
	})

	return entries, err
}

// CollectFile returns all the entries in the file at path, which can be
// StdinName to read STDIN instead.
func CollectFile(path string, onNull bool) ([]string, error) {
	if path == StdinName {
		return Collect(os.Stdin, onNull)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return Collect(f, onNull)
}
