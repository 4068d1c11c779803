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

// Package resolve implements the path resolver (C2): specifier
// classification, alias rewriting, relative-request resolution, extension
// normalization, and bare-module resolution under /@modules/<pkg>.
package resolve

import "strings"

// SpecifierKind classifies a textual import specifier.
type SpecifierKind int

const (
	KindBare SpecifierKind = iota
	KindRelative
	KindAbsolute
	KindExternalURL
	KindDataURL
)

func (k SpecifierKind) String() string {
	switch k {
	case KindBare:
		return "bare"
	case KindRelative:
		return "relative"
	case KindAbsolute:
		return "absolute"
	case KindExternalURL:
		return "external-url"
	case KindDataURL:
		return "dataUrl"
	default:
		return "unknown"
	}
}

// ClassifySpecifier returns the SpecifierKind of a raw import specifier
// string, per spec.md §3.
func ClassifySpecifier(id string) SpecifierKind {
	switch {
	case strings.HasPrefix(id, "data:"):
		return KindDataURL
	case IsExternalURL(id):
		return KindExternalURL
	case strings.HasPrefix(id, "/"):
		return KindAbsolute
	case strings.HasPrefix(id, "./") || strings.HasPrefix(id, "../"):
		return KindRelative
	default:
		return KindBare
	}
}

// IsExternalURL reports whether id is a protocol-relative or http(s): URL,
// which resolveImport must leave untouched.
func IsExternalURL(id string) bool {
	return strings.HasPrefix(id, "//") ||
		strings.HasPrefix(id, "http://") ||
		strings.HasPrefix(id, "https://")
}

// jsSrcExtensions are the extensions normalizePublicPath probes in order,
// and the set resolveImport checks against to decide whether to append
// ?import for non-JS-as-JS requests.
var jsSrcExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".vue", ".json"}

// IsJSSourceExtension reports whether ext (with leading dot) is a
// recognized JS/TS source extension.
func IsJSSourceExtension(ext string) bool {
	for _, e := range jsSrcExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// CleanURL strips query and fragment, returning the cleanId per I2.
func CleanURL(publicPath string) string {
	if idx := strings.IndexAny(publicPath, "?#"); idx >= 0 {
		return publicPath[:idx]
	}
	return publicPath
}
