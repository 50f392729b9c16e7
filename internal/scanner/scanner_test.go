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

package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestScanner(t *testing.T) {
	Convey("Given a scanner package", t, func() {
		dir := t.TempDir()

		Convey("Collect splits on newlines, skipping blanks and trimming", func() {
			got, err := Collect(strings.NewReader("/a/b\n\n  /c/d  \r\n/e/f"), false)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []string{"/a/b", "/c/d", "/e/f"})
		})

		Convey("Collect can split on nulls, keeping embedded newlines", func() {
			got, err := Collect(strings.NewReader("/a/b\n/c\x00/d e\x00\x00"), true)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []string{"/a/b\n/c", "/d e"})
		})

		Convey("Collect of nothing gives nothing", func() {
			got, err := Collect(strings.NewReader(""), false)
			So(err, ShouldBeNil)
			So(got, ShouldBeEmpty)
		})

		Convey("Scan stops on callback error", func() {
			stop := errors.New("stop")
			calls := 0

			err := Scan(strings.NewReader("a\nb\nc\n"), false, func(string) error {
				calls++
				if calls == 2 {
					return stop
				}

				return nil
			})
			So(err, ShouldEqual, stop)
			So(calls, ShouldEqual, 2)
		})

		Convey("CollectFile reads a file", func() {
			path := filepath.Join(dir, "files.txt")
			So(os.WriteFile(path, []byte("/x\n/y\n"), 0600), ShouldBeNil)

			got, err := CollectFile(path, false)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []string{"/x", "/y"})
		})

		Convey("CollectFile on a missing file fails", func() {
			_, err := CollectFile(filepath.Join(dir, "missing"), false)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
		})

		Convey("ScanNulls with a trailing entry", func() {
			adv, tok, err := ScanNulls([]byte("abc"), true)
			So(err, ShouldBeNil)
			So(adv, ShouldEqual, 3)
			So(string(tok), ShouldEqual, "abc")

			adv, tok, err = ScanNulls([]byte("abc"), false)
			So(err, ShouldBeNil)
			So(adv, ShouldEqual, 0)
			So(tok, ShouldBeNil)
		})
	})
}
