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

// package spec handles transfer specifications: the JSON documents, defined by
// the transfer daemon, that describe a transfer. We mostly pass them through
// untouched, but can load them from JSON or YAML files, add source files to
// them, and set the odd client-side field.

package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgryski/go-farm"
	"gopkg.in/yaml.v3"
)

// HTTPFallbackKey is the field that enables or disables the daemon falling
// back to HTTP when its own protocol can't get through.
const HTTPFallbackKey = "http_fallback"

// SourceKey is the field of a path entry holding the source path.
const SourceKey = "source"

// Error is returned when a spec can't be navigated as asked.
type Error struct {
	Msg string
	Key string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Msg, e.Key)
}

const (
	ErrKeyNotFound = "key not found in transfer spec"
	ErrNotMap      = "transfer spec key is not a map"
	ErrNotList     = "transfer spec key is not a list"
	ErrEmptyPath   = "empty transfer spec key"
)

// Spec is a transfer specification.
type Spec map[string]any

// Load reads a Spec from a file. Files ending .yaml or .yml are read as YAML,
// everything else as JSON.
func Load(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}

// Parse decodes a JSON Spec. Numbers are kept as json.Number so that they are
// re-encoded exactly as given.
func Parse(data []byte) (Spec, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a JSON Spec from r.
func Decode(r io.Reader) (Spec, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var s Spec
	if err := dec.Decode(&s); err != nil {
		return nil, err
	}

	if s == nil {
		s = Spec{}
	}

	return s, nil
}

// ParseYAML decodes a YAML Spec.
func ParseYAML(data []byte) (Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	if s == nil {
		s = Spec{}
	}

	return s, nil
}

// Encode returns the Spec as JSON. Keys are sorted, so equal specs encode
// identically.
func (s Spec) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// String returns the JSON encoding of the Spec, or blank if it can't be
// encoded.
func (s Spec) String() string {
	data, err := s.Encode()
	if err != nil {
		return ""
	}

	return string(data)
}

// Fingerprint returns a hash of the Spec's encoding, identifying its content.
func (s Spec) Fingerprint() (string, error) {
	data, err := s.Encode()
	if err != nil {
		return "", err
	}

	l, h := farm.Hash128(data)

	return fmt.Sprintf("%016x%016x", l, h), nil
}

// Clone returns a shallow copy of the Spec.
func (s Spec) Clone() Spec {
	c := make(Spec, len(s))
	for k, v := range s {
		c[k] = v
	}

	return c
}

// WithHTTPFallback returns a copy of the Spec with http_fallback set as given.
func (s Spec) WithHTTPFallback(enabled bool) Spec {
	c := s.Clone()
	c[HTTPFallbackKey] = enabled

	return c
}

// Get returns the value at the given dot-separated path, eg. "a.b.c".
func (s Spec) Get(dotPath string) (any, bool) {
	keys := strings.Split(dotPath, ".")

	parent, err := s.parent(keys, false)
	if err != nil {
		return nil, false
	}

	v, ok := parent[keys[len(keys)-1]]

	return v, ok
}

// Set sets the value at the given dot-separated path, creating intermediate
// maps as needed.
func (s Spec) Set(dotPath string, value any) error {
	if dotPath == "" {
		return Error{Msg: ErrEmptyPath}
	}

	keys := strings.Split(dotPath, ".")

	parent, err := s.parent(keys, true)
	if err != nil {
		return err
	}

	parent[keys[len(keys)-1]] = value

	return nil
}

// parent returns the map that holds the final key of keys, optionally creating
// missing maps along the way.
func (s Spec) parent(keys []string, create bool) (map[string]any, error) {
	m := map[string]any(s)

	for _, key := range keys[:len(keys)-1] {
		val, ok := m[key]
		if !ok {
			if !create {
				return nil, Error{Msg: ErrKeyNotFound, Key: key}
			}

			nested := make(map[string]any)
			m[key] = nested
			m = nested

			continue
		}

		nested, ok := asMap(val)
		if !ok {
			return nil, Error{Msg: ErrNotMap, Key: key}
		}

		m = nested
	}

	return m, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Spec:
		return m, true
	default:
		return nil, false
	}
}

// AddSources appends a {"source": file} entry for each file to the list at
// the given dot-separated path, eg. "transfer.paths". Every map along the path
// must exist; the list itself is created if missing.
func (s Spec) AddSources(dotPath string, files []string) error {
	if dotPath == "" {
		return Error{Msg: ErrEmptyPath}
	}

	keys := strings.Split(dotPath, ".")
	last := keys[len(keys)-1]

	parent, err := s.parent(keys, false)
	if err != nil {
		return err
	}

	var list []any

	switch existing := parent[last].(type) {
	case nil:
	case []any:
		list = existing
	case []map[string]any:
		for _, entry := range existing {
			list = append(list, entry)
		}
	default:
		return Error{Msg: ErrNotList, Key: last}
	}

	for _, file := range files {
		list = append(list, map[string]any{SourceKey: file})
	}

	parent[last] = list

	return nil
}

// Sources returns the source paths listed at the given dot-separated path.
func (s Spec) Sources(dotPath string) []string {
	v, ok := s.Get(dotPath)
	if !ok {
		return nil
	}

	list, ok := v.([]any)
	if !ok {
		return nil
	}

	var sources []string

	for _, entry := range list {
		if m, ok := asMap(entry); ok {
			if src, ok := m[SourceKey].(string); ok {
				sources = append(sources, src)
			}
		}
	}

	return sources
}
