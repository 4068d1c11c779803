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

package cache

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.js")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestFileCache_ReadCachesUntilMtimeChanges(t *testing.T) {
	path := writeTempFile(t, "export const a = 1;")
	c := NewFileCache(0)

	content, entry, err := c.Read(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(content) != "export const a = 1;" {
		t.Fatalf("unexpected content: %q", content)
	}
	firstETag := entry.ETag

	content2, entry2, err := c.Read(path)
	if err != nil {
		t.Fatalf("unexpected error on second read: %v", err)
	}
	if string(content2) != string(content) || entry2.ETag != firstETag {
		t.Fatalf("expected identical cached entry on unchanged mtime")
	}
}

func TestFileCache_ReadMissingFile(t *testing.T) {
	c := NewFileCache(0)
	_, _, err := c.Read(filepath.Join(t.TempDir(), "missing.js"))
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileCache_InvalidateForcesReread(t *testing.T) {
	path := writeTempFile(t, "export const a = 1;")
	c := NewFileCache(0)

	if _, _, err := c.Read(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Invalidate(path)

	if err := os.WriteFile(path, []byte("export const a = 2;"), 0o644); err != nil {
		t.Fatalf("rewriting file: %v", err)
	}
	content, _, err := c.Read(path)
	if err != nil {
		t.Fatalf("unexpected error re-reading: %v", err)
	}
	if string(content) != "export const a = 2;" {
		t.Fatalf("expected updated content after invalidate, got %q", content)
	}
}

func TestFileCache_LRUEviction(t *testing.T) {
	c := NewFileCache(2)

	pathA := writeTempFile(t, "a")
	pathB := writeTempFile(t, "b")
	pathC := writeTempFile(t, "c")

	if _, _, err := c.Read(pathA); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Read(pathB); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Read(pathC); err != nil {
		t.Fatal(err)
	}

	if len(c.entries) != 2 {
		t.Fatalf("expected LRU bounded to 2 entries, got %d", len(c.entries))
	}
	if _, ok := c.entries[pathA]; ok {
		t.Fatalf("expected least-recently-used entry %s to be evicted", pathA)
	}
}

// TestFileCache_ApplyHeaders_NotModifiedOnlyAfterSeen covers the spec's
// "post-restart 304" design note: a matching If-None-Match is honored only
// once the publicPath has been served (and therefore marked seen) earlier
// in this process.
func TestFileCache_ApplyHeaders_NotModifiedOnlyAfterSeen(t *testing.T) {
	c := NewFileCache(0)
	entry := &FileCacheEntry{LastModified: 1000, ETag: `"abc123"`, Content: []byte("x")}

	req := httptest.NewRequest(http.MethodGet, "/mod.js", nil)
	req.Header.Set("If-None-Match", `"abc123"`)
	rec := httptest.NewRecorder()

	handled := c.ApplyHeaders(rec, req, "/mod.js", entry)
	if handled {
		t.Fatal("expected first request (never seen) to not be a 304")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/mod.js", nil)
	req2.Header.Set("If-None-Match", `"abc123"`)
	rec2 := httptest.NewRecorder()
	handled2 := c.ApplyHeaders(rec2, req2, "/mod.js", entry)
	if !handled2 {
		t.Fatal("expected second request with matching ETag to be a 304")
	}
	if rec2.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", rec2.Code)
	}
}

func TestContentType_DefaultsToOctetStream(t *testing.T) {
	if ct := ContentType("/mod.js"); ct != "application/javascript; charset=utf-8" {
		t.Fatalf("unexpected content type for .js: %q", ct)
	}
	if ct := ContentType("/data.bin?import"); ct != "application/octet-stream" {
		t.Fatalf("expected default octet-stream, got %q", ct)
	}
}

func TestRewriteCache_SetGetRoundTrip(t *testing.T) {
	rc := NewRewriteCache(0)
	key := NewRewriteKey("/mod.js", []byte("source"))

	if _, ok := rc.Get(key); ok {
		t.Fatal("expected miss before Set")
	}
	rc.Set(key, []byte("rewritten"))
	body, ok := rc.Get(key)
	if !ok || string(body) != "rewritten" {
		t.Fatalf("expected cached rewrite, got %q (ok=%v)", body, ok)
	}
}

// TestRewriteCache_InvalidatePrefix covers invariant I3: every key whose
// embedded publicPath matches is evicted, regardless of which body bytes
// it was keyed on.
func TestRewriteCache_InvalidatePrefix(t *testing.T) {
	rc := NewRewriteCache(0)
	keyOld := NewRewriteKey("/mod.js", []byte("old source"))
	keyNew := NewRewriteKey("/mod.js", []byte("new source"))
	keyOther := NewRewriteKey("/other.js", []byte("other"))

	rc.Set(keyOld, []byte("rewritten-old"))
	rc.Set(keyNew, []byte("rewritten-new"))
	rc.Set(keyOther, []byte("rewritten-other"))

	removed := rc.InvalidatePrefix("/mod.js")
	if removed != 2 {
		t.Fatalf("expected 2 entries evicted, got %d", removed)
	}
	if _, ok := rc.Get(keyOld); ok {
		t.Fatal("expected old-body key evicted")
	}
	if _, ok := rc.Get(keyNew); ok {
		t.Fatal("expected new-body key evicted")
	}
	if _, ok := rc.Get(keyOther); !ok {
		t.Fatal("expected unrelated publicPath's entry to survive")
	}
}

func TestRewriteKey_PublicPath(t *testing.T) {
	key := NewRewriteKey("/a/b.js?import", []byte("body"))
	if got := key.PublicPath(); got != "/a/b.js?import" {
		t.Fatalf("expected publicPath round-trip, got %q", got)
	}
}
