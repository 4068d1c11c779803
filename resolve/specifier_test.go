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

package resolve

import "testing"

func TestClassifySpecifier(t *testing.T) {
	cases := []struct {
		id   string
		want SpecifierKind
	}{
		{"lit", KindBare},
		{"@scope/pkg", KindBare},
		{"./sibling.js", KindRelative},
		{"../up.js", KindRelative},
		{"/abs.js", KindAbsolute},
		{"https://cdn.example.com/a.js", KindExternalURL},
		{"//cdn.example.com/a.js", KindExternalURL},
		{"data:text/javascript,export default 1", KindDataURL},
	}
	for _, c := range cases {
		if got := ClassifySpecifier(c.id); got != c.want {
			t.Errorf("ClassifySpecifier(%q) = %s, want %s", c.id, got, c.want)
		}
	}
}

// TestCleanURL_InvariantI2 covers I2: cleanId never contains ? or #.
func TestCleanURL_InvariantI2(t *testing.T) {
	cases := map[string]string{
		"/mod.js":          "/mod.js",
		"/mod.js?import":   "/mod.js",
		"/mod.js?t=123":    "/mod.js",
		"/mod.js#fragment": "/mod.js",
		"/mod.js?t=1#frag": "/mod.js",
	}
	for in, want := range cases {
		if got := CleanURL(in); got != want {
			t.Errorf("CleanURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsJSSourceExtension(t *testing.T) {
	for _, ext := range []string{".ts", ".tsx", ".js", ".jsx", ".mjs"} {
		if !IsJSSourceExtension(ext) {
			t.Errorf("expected %q to be a JS source extension", ext)
		}
	}
	for _, ext := range []string{".css", ".svg", ".png", ""} {
		if IsJSSourceExtension(ext) {
			t.Errorf("expected %q to not be a JS source extension", ext)
		}
	}
}
