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

import (
	"os"
	"path/filepath"
	"testing"

	"go.esmdev.dev/server/config"
	"go.esmdev.dev/server/internal/platform"
)

func newTestResolver(t *testing.T, rewrites []config.URLRewrite) (*Resolver, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "components"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "components", "widget.ts"), []byte("export {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "components", "index.js"), []byte("export {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	return New(root, rewrites, platform.NewOSFileSystem()), root
}

func TestResolver_FileToRequest_RequestToFile_RoundTrip(t *testing.T) {
	r, root := newTestResolver(t, nil)
	abs := filepath.Join(root, "components", "widget.ts")

	req := r.FileToRequest(abs)
	if req != "/components/widget.ts" {
		t.Fatalf("unexpected publicPath: %q", req)
	}

	back := r.RequestToFile(req)
	if back != abs {
		t.Fatalf("RequestToFile round-trip mismatch: got %q want %q", back, abs)
	}
}

func TestResolver_RequestToFile_RejectsTraversal(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	if got := r.RequestToFile("/../../../etc/passwd"); got != "" {
		t.Fatalf("expected traversal to be rejected, got %q", got)
	}
}

func TestResolver_NormalizePublicPath_AddsExtension(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	if got := r.NormalizePublicPath("/components/widget"); got != "/components/widget.ts" {
		t.Fatalf("expected extension probing to find widget.ts, got %q", got)
	}
}

func TestResolver_NormalizePublicPath_FindsIndexFile(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	if got := r.NormalizePublicPath("/components"); got != "/components/index.js" {
		t.Fatalf("expected index-file probing to find index.js, got %q", got)
	}
}

func TestResolver_NormalizePublicPath_PreservesQuery(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	if got := r.NormalizePublicPath("/components/widget?import"); got != "/components/widget.ts?import" {
		t.Fatalf("expected query preserved across extension probe, got %q", got)
	}
}

func TestResolver_ResolveRelativeRequest(t *testing.T) {
	r, _ := newTestResolver(t, nil)

	rr := r.ResolveRelativeRequest("/components/widget.ts", "./icon.js")
	if rr.Pathname != "/components/icon.js" {
		t.Fatalf("expected sibling merge, got %q", rr.Pathname)
	}

	rr = r.ResolveRelativeRequest("/components/widget.ts", "../shared/util.js?import")
	if rr.Pathname != "/shared/util.js" || rr.Query != "?import" {
		t.Fatalf("expected parent-dir merge with preserved query, got pathname=%q query=%q", rr.Pathname, rr.Query)
	}

	rr = r.ResolveRelativeRequest("/components/widget.ts", "/already/absolute.js")
	if rr.Pathname != "/already/absolute.js" {
		t.Fatalf("expected absolute specifier to pass through unchanged, got %q", rr.Pathname)
	}
}

func TestResolver_Alias(t *testing.T) {
	r, _ := newTestResolver(t, []config.URLRewrite{
		{URLPattern: "/vendor/:pkg", URLTemplate: "/node_modules/{{.pkg}}"},
	})

	if got := r.Alias("/vendor/lit"); got != "/node_modules/lit" {
		t.Fatalf("expected alias rewrite, got %q", got)
	}
	if got := r.Alias("/untouched.js"); got != "/untouched.js" {
		t.Fatalf("expected unmatched id to pass through, got %q", got)
	}
}

func TestValidateURLRewrites_RejectsBadPattern(t *testing.T) {
	err := ValidateURLRewrites([]config.URLRewrite{
		{URLPattern: "[", URLTemplate: "/x"},
	})
	if err == nil {
		t.Fatal("expected an error for an invalid URL pattern")
	}
}
