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

package spec

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSpec(t *testing.T) {
	Convey("Given a JSON transfer spec", t, func() {
		data := `{"remote_host":"demo.example.com","ssh_port":33001,"rate":1.5e9,` +
			`"transfer":{"direction":"send","paths":[{"source":"a.txt"}]}}`

		s, err := Parse([]byte(data))
		So(err, ShouldBeNil)

		Convey("Numbers are re-encoded exactly as given", func() {
			enc, err := s.Encode()
			So(err, ShouldBeNil)
			So(string(enc), ShouldEqual, `{"rate":1.5e9,"remote_host":"demo.example.com","ssh_port":33001,`+
				`"transfer":{"direction":"send","paths":[{"source":"a.txt"}]}}`)
		})

		Convey("You can get values by dot path", func() {
			v, ok := s.Get("transfer.direction")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, "send")

			_, ok = s.Get("transfer.nope")
			So(ok, ShouldBeFalse)

			_, ok = s.Get("remote_host.nope")
			So(ok, ShouldBeFalse)
		})

		Convey("AddSources appends to an existing list", func() {
			So(s.AddSources("transfer.paths", []string{"b.txt", "c.txt"}), ShouldBeNil)
			So(s.Sources("transfer.paths"), ShouldResemble, []string{"a.txt", "b.txt", "c.txt"})
		})

		Convey("AddSources creates a missing list", func() {
			So(s.AddSources("transfer.more", []string{"d.txt"}), ShouldBeNil)
			So(s.Sources("transfer.more"), ShouldResemble, []string{"d.txt"})
		})

		Convey("AddSources fails on a bad path", func() {
			err := s.AddSources("missing.paths", []string{"x"})
			So(err, ShouldResemble, Error{Msg: ErrKeyNotFound, Key: "missing"})

			err = s.AddSources("remote_host.paths", []string{"x"})
			So(err, ShouldResemble, Error{Msg: ErrNotMap, Key: "remote_host"})

			err = s.AddSources("transfer.direction", []string{"x"})
			So(err, ShouldResemble, Error{Msg: ErrNotList, Key: "direction"})

			So(s.AddSources("", nil), ShouldResemble, Error{Msg: ErrEmptyPath})
		})

		Convey("Set creates intermediate maps", func() {
			So(s.Set("tags.app.name", "xferd"), ShouldBeNil)

			v, ok := s.Get("tags.app.name")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, "xferd")

			So(s.Set("remote_host.x", 1), ShouldNotBeNil)
		})

		Convey("WithHTTPFallback returns a modified copy", func() {
			c := s.WithHTTPFallback(false)
			So(c[HTTPFallbackKey], ShouldEqual, false)

			_, ok := s[HTTPFallbackKey]
			So(ok, ShouldBeFalse)
		})

		Convey("Fingerprints identify content", func() {
			f1, err := s.Fingerprint()
			So(err, ShouldBeNil)
			So(len(f1), ShouldEqual, 32)

			again, err := Parse([]byte(data))
			So(err, ShouldBeNil)

			f2, err := again.Fingerprint()
			So(err, ShouldBeNil)
			So(f2, ShouldEqual, f1)

			f3, err := s.WithHTTPFallback(true).Fingerprint()
			So(err, ShouldBeNil)
			So(f3, ShouldNotEqual, f1)
		})
	})

	Convey("Load reads JSON and YAML files", t, func() {
		dir := t.TempDir()

		jsonPath := filepath.Join(dir, "spec.json")
		So(os.WriteFile(jsonPath, []byte(`{"remote_host":"h","paths":[]}`), 0600), ShouldBeNil)

		s, err := Load(jsonPath)
		So(err, ShouldBeNil)
		So(s["remote_host"], ShouldEqual, "h")

		yamlPath := filepath.Join(dir, "spec.yaml")
		So(os.WriteFile(yamlPath, []byte("remote_host: h\nssh_port: 33001\ntransfer:\n  paths:\n"+
			"    - source: a.txt\n"), 0600), ShouldBeNil)

		s, err = Load(yamlPath)
		So(err, ShouldBeNil)
		So(s["ssh_port"], ShouldEqual, 33001)
		So(s.Sources("transfer.paths"), ShouldResemble, []string{"a.txt"})

		enc, err := s.Encode()
		So(err, ShouldBeNil)
		So(string(enc), ShouldContainSubstring, `"ssh_port":33001`)

		_, err = Load(filepath.Join(dir, "missing.json"))
		So(err, ShouldNotBeNil)

		badPath := filepath.Join(dir, "bad.json")
		So(os.WriteFile(badPath, []byte(`{`), 0600), ShouldBeNil)

		_, err = Load(badPath)
		So(err, ShouldNotBeNil)
	})
}
