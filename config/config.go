/*
Copyright © 2025 esmdev contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package config holds the process-wide configuration threaded through the
// server, resolver, and watcher, loaded by cmd/serve via viper.
package config

import "time"

// URLRewrite is a user-declared alias rule: requests matching URLPattern
// are rewritten according to URLTemplate (a text/template string receiving
// the pattern's named capture groups). Referenced throughout the resolver
// but not itself a spec.md data-model type — it is the resolver's
// implementation detail for the `alias` operation.
type URLRewrite struct {
	URLPattern  string `mapstructure:"urlPattern" json:"urlPattern" yaml:"urlPattern"`
	URLTemplate string `mapstructure:"urlTemplate" json:"urlTemplate" yaml:"urlTemplate"`
}

// ServerConfig is the process-wide configuration object.
type ServerConfig struct {
	// Root is the absolute path to the project being served.
	Root string `mapstructure:"root"`

	// Port is the HTTP listen port.
	Port int `mapstructure:"port"`

	// Host is the listen address.
	Host string `mapstructure:"host"`

	// WatchDir overrides Root for the file watcher, when the served tree
	// and the watched tree differ (rare; defaults to Root).
	WatchDir string `mapstructure:"watchDir"`

	// Verbose enables debug-level logging.
	Verbose bool `mapstructure:"verbose"`

	// Target selects the esbuild compile target (e.g. "es2022").
	Target string `mapstructure:"target"`

	// URLRewrites are compiled by resolve.Resolver into alias rules.
	URLRewrites []URLRewrite `mapstructure:"urlRewrites"`

	// IgnoreGlobs are doublestar glob patterns excluded from the watcher in
	// addition to the fixed ignore list and any .gitignore.
	IgnoreGlobs []string `mapstructure:"ignoreGlobs"`

	// DebounceWindow controls how long the watcher waits after the most
	// recent filesystem event (on any path) before emitting one event per
	// changed path.
	DebounceWindow time.Duration `mapstructure:"debounceWindow"`

	// FileCacheSize / RewriteCacheSize override the default LRU capacities.
	FileCacheSize    int `mapstructure:"fileCacheSize"`
	RewriteCacheSize int `mapstructure:"rewriteCacheSize"`

	// ClientPublicPath is the path the HMR runtime client is served from.
	ClientPublicPath string `mapstructure:"clientPublicPath"`

	// EnvPublicPath is the path import.meta.env injection imports from.
	EnvPublicPath string `mapstructure:"envPublicPath"`
}

// Default returns a ServerConfig with the server's baseline defaults.
func Default() *ServerConfig {
	return &ServerConfig{
		Port:             3000,
		Host:             "localhost",
		Target:           "es2022",
		DebounceWindow:   150 * time.Millisecond,
		FileCacheSize:    10_000,
		RewriteCacheSize: 1_024,
		ClientPublicPath: "/@esmdev/client",
		EnvPublicPath:    "/@esmdev/env",
	}
}

// ConfigError marks a fatal startup configuration failure (§7 taxonomy).
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }
