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

// package config reads xferd's settings file: a YAML document of named
// sections of key/value settings, telling us where the transfer daemon lives
// and how to run it.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfig names the settings file, if not given explicitly.
	EnvConfig = "XFERD_CONFIG"

	// EnvTopDir is the directory relative paths in the settings file are
	// relative to. Defaults to the directory of the settings file.
	EnvTopDir = "XFERD_DIR_TOP"

	// DefaultConfigRel is where we look for the settings file under the top
	// directory when it's not named.
	DefaultConfigRel = "config/config.yaml"

	// DefaultPort is the daemon port used when a URL doesn't give one.
	DefaultPort = 33001

	// DotEnv is loaded into the environment, if it exists, before settings
	// are read, so settings can refer to $VARS defined in it.
	DotEnv = ".env"
)

// Section names.
const (
	SectionDaemon  = "trsdk"
	SectionPaths   = "paths"
	SectionMisc    = "misc"
	SectionSlack   = "slack"
	SectionHistory = "history"
	SectionServer  = "server"
)

// Error is returned when settings are missing or of the wrong type.
type Error struct {
	Msg string
	Key string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Msg, e.Key)
}

const (
	ErrNoConfig     = "no settings file found"
	ErrMissing      = "setting not found"
	ErrWrongType    = "setting has the wrong type"
	ErrPathNotFound = "configured path does not exist"
	ErrNoTopDir     = "top directory does not exist"
)

// Config holds the settings read from a settings file.
type Config struct {
	// File is the settings file we read.
	File string

	// TopDir anchors relative paths.
	TopDir string

	sections map[string]map[string]any
}

// LoadEnv loads the .env file in the current directory into the environment,
// if there is one. Variables already set are not overridden.
func LoadEnv() error {
	err := godotenv.Load(DotEnv)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

// Find returns the path of the settings file to use: path if not blank, else
// $XFERD_CONFIG, else config/config.yaml under $XFERD_DIR_TOP.
func Find(path string) (string, error) {
	if path != "" {
		return path, nil
	}

	if path = os.Getenv(EnvConfig); path != "" {
		return path, nil
	}

	if top := os.Getenv(EnvTopDir); top != "" {
		return filepath.Join(top, DefaultConfigRel), nil
	}

	return "", Error{Msg: ErrNoConfig, Key: EnvConfig}
}

// Load reads the settings file at path (found with Find() if blank).
func Load(path string) (*Config, error) {
	path, err := Find(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.File = path

	c.TopDir, err = topDir(path)

	return c, err
}

func topDir(configPath string) (string, error) {
	top := os.Getenv(EnvTopDir)
	if top == "" {
		top = filepath.Dir(configPath)
	}

	top, err := filepath.Abs(top)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(top)
	if err != nil || !info.IsDir() {
		return "", Error{Msg: ErrNoTopDir, Key: top}
	}

	return top, nil
}

// Parse parses YAML settings. TopDir is left as the current directory.
func Parse(data []byte) (*Config, error) {
	sections := make(map[string]map[string]any)

	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, err
	}

	return &Config{TopDir: ".", sections: sections}, nil
}

// Param returns the raw value of the given setting.
func (c *Config) Param(section, key string) (any, error) {
	s, ok := c.sections[section]
	if !ok {
		return nil, Error{Msg: ErrMissing, Key: section}
	}

	v, ok := s[key]
	if !ok || v == nil {
		return nil, Error{Msg: ErrMissing, Key: section + "." + key}
	}

	return v, nil
}

// ParamStr returns the given setting as a string, with $VARS expanded from the
// environment. Numbers and booleans are converted to strings.
func (c *Config) ParamStr(section, key string) (string, error) {
	v, err := c.Param(section, key)
	if err != nil {
		return "", err
	}

	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val), nil
	case int:
		return strconv.Itoa(val), nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		return "", Error{Msg: ErrWrongType, Key: section + "." + key}
	}
}

// String returns the given string setting, or def if it isn't set.
func (c *Config) String(section, key, def string) string {
	v, err := c.ParamStr(section, key)
	if err != nil {
		return def
	}

	return v
}

// ParamBool returns the given boolean setting, or def if it isn't set or isn't
// a boolean.
func (c *Config) ParamBool(section, key string, def bool) bool {
	v, err := c.Param(section, key)
	if err != nil {
		return def
	}

	b, ok := v.(bool)
	if !ok {
		return def
	}

	return b
}

// Duration returns the given setting parsed as a duration (eg. "5s"), or def
// if it isn't set.
func (c *Config) Duration(section, key string, def time.Duration) (time.Duration, error) {
	v, err := c.ParamStr(section, key)
	if err != nil {
		return def, nil //nolint:nilerr
	}

	return time.ParseDuration(v)
}

// Path returns the absolute path named in the paths section, resolving
// relative paths against TopDir, and confirming it exists.
func (c *Config) Path(name string) (string, error) {
	p, err := c.ParamStr(SectionPaths, name)
	if err != nil {
		return "", err
	}

	if !filepath.IsAbs(p) {
		p = filepath.Join(c.TopDir, p)
	}

	if _, err = os.Stat(p); err != nil {
		return "", Error{Msg: ErrPathNotFound, Key: p}
	}

	return p, nil
}

// PortOrDefault returns the port of the given URL, or def if it doesn't have
// one.
func PortOrDefault(u *url.URL, def int) (int, error) {
	if u.Port() == "" {
		return def, nil
	}

	return strconv.Atoi(u.Port())
}
