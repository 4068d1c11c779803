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

package rewrite

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.esmdev.dev/server/cache"
	"go.esmdev.dev/server/config"
	"go.esmdev.dev/server/graph"
	"go.esmdev.dev/server/hmr"
	"go.esmdev.dev/server/internal/platform"
	"go.esmdev.dev/server/resolve"
)

// newTestEngine builds a real Engine (real resolver, real graph, real
// tree-sitter parser via the global query manager) rooted at a fresh temp
// dir, using the module's actual default public paths rather than spec.md's
// illustrative example strings.
func newTestEngine(t *testing.T) (*Engine, *graph.Graph, string) {
	t.Helper()
	root := t.TempDir()
	g := graph.New()
	r := resolve.New(root, nil, platform.NewOSFileSystem())
	rc := cache.NewRewriteCache(0)
	cfg := config.Default()
	e := NewEngine(r, g, rc, cfg.ClientPublicPath, cfg.EnvPublicPath, nil)
	return e, g, root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Scenario 1: bare import rewrite + import.meta.env injection, spec.md §8.
func TestEngine_Rewrite_BareImportAndEnv(t *testing.T) {
	e, g, root := newTestEngine(t)
	writeFile(t, filepath.Join(root, "node_modules", "vue", "package.json"),
		`{"name":"vue","main":"index.js","module":"dist/vue.runtime.esm.js"}`)

	source := "import Vue from \"vue\";\nconsole.log(import.meta.env.MODE);\n"
	got := e.Rewrite(Request{PublicPath: "/src/main.js", Body: []byte(source)})

	wantEnvPreamble := fmt.Sprintf("import __ENV__ from %q; import.meta.env = __ENV__;\n", "/@esmdev/env")
	wantBody := "import Vue from \"/@modules/vue/dist/vue.runtime.esm.js\";\nconsole.log(import.meta.env.MODE);\n"
	want := wantEnvPreamble + wantBody

	if string(got) != want {
		t.Fatalf("rewrite mismatch:\n got:  %q\n want: %q", got, want)
	}

	importers := g.Importers("/@modules/vue/dist/vue.runtime.esm.js")
	if len(importers) != 1 || importers[0] != "/src/main.js" {
		t.Fatalf("expected /src/main.js recorded as importer of the resolved vue entry, got %v", importers)
	}
}

// Scenario 2: relative path normalization against a file that exists on disk.
func TestEngine_Rewrite_RelativePathNormalization(t *testing.T) {
	e, g, root := newTestEngine(t)
	writeFile(t, filepath.Join(root, "src", "App.vue"), "<template></template>")

	source := "import App from \"./App\";\n"
	got := e.Rewrite(Request{PublicPath: "/src/main.js", Body: []byte(source)})

	want := "import App from \"/src/App.vue\";\n"
	if string(got) != want {
		t.Fatalf("rewrite mismatch:\n got:  %q\n want: %q", got, want)
	}

	importers := g.Importers("/src/App.vue")
	if len(importers) != 1 || importers[0] != "/src/main.js" {
		t.Fatalf("expected /src/main.js recorded as importer of /src/App.vue, got %v", importers)
	}
}

// Scenario 3: non-JS asset import gains the ?import marker.
func TestEngine_Rewrite_NonJSImportMarker(t *testing.T) {
	e, _, root := newTestEngine(t)
	writeFile(t, filepath.Join(root, "src", "logo.png"), "not actually a png")

	source := "import logoUrl from \"./logo.png\";\n"
	got := e.Rewrite(Request{PublicPath: "/src/main.js", Body: []byte(source)})

	want := "import logoUrl from \"/src/logo.png?import\";\n"
	if string(got) != want {
		t.Fatalf("rewrite mismatch:\n got:  %q\n want: %q", got, want)
	}
}

// Scenario 5: import.meta.hot.accept() with no dependency list marks a
// self-accepting HMR boundary, so a change to a module it imports stops at
// the boundary instead of propagating to a full reload. This exercises the
// QueryHotAccept fix directly: before the meta_property correction, real
// parsed source never matched, hmrBoundaries stayed empty, and Propagate
// always returned full-reload.
func TestEngine_Rewrite_SelfAcceptBoundaryStopsPropagation(t *testing.T) {
	e, g, root := newTestEngine(t)
	writeFile(t, filepath.Join(root, "src", "leaf.js"), "export const value = 1;\n")

	widgetSource := "import \"./leaf.js\";\n" +
		"if (import.meta.hot) {\n" +
		"  import.meta.hot.accept();\n" +
		"}\n"
	got := e.Rewrite(Request{PublicPath: "/src/widget.js", Body: []byte(widgetSource)})

	wantHMRPreamble := fmt.Sprintf(
		"import { createHotContext } from %q; import.meta.hot = createHotContext(%q);\n",
		"/@esmdev/client", "/src/widget.js",
	)
	wantBody := "import \"/src/leaf.js\";\n" +
		"if (import.meta.hot) {\n" +
		"  import.meta.hot.accept();\n" +
		"}\n"
	want := wantHMRPreamble + wantBody

	if string(got) != want {
		t.Fatalf("rewrite mismatch:\n got:  %q\n want: %q", got, want)
	}

	if !g.IsSelfAccepting("/src/widget.js") {
		t.Fatal("expected /src/widget.js to be recorded as a self-accepting HMR boundary")
	}

	hub := hmr.NewHub(nil)
	p := hmr.NewPropagator(g, hub)
	msg := p.Propagate("/src/leaf.js", 1000)

	if msg.Type != "update" {
		t.Fatalf("expected self-accept boundary to stop a full reload, got message type %q", msg.Type)
	}
	if len(msg.Updates) != 1 || msg.Updates[0].AcceptedPath != "/src/widget.js" {
		t.Fatalf("expected one update accepted at /src/widget.js, got %v", msg.Updates)
	}
}

// Scenario 6: a change with no self-accept or dependency-accept boundary
// anywhere in its importer chain triggers a full reload.
func TestEngine_Rewrite_NoBoundaryTriggersFullReload(t *testing.T) {
	e, g, root := newTestEngine(t)
	writeFile(t, filepath.Join(root, "src", "leaf2.js"), "export const value = 2;\n")

	pageSource := "import \"./leaf2.js\";\n"
	e.Rewrite(Request{PublicPath: "/src/page.js", Body: []byte(pageSource)})

	hub := hmr.NewHub(nil)
	p := hmr.NewPropagator(g, hub)
	msg := p.Propagate("/src/leaf2.js", 2000)

	if msg.Type != "full-reload" {
		t.Fatalf("expected full-reload with no HMR boundary anywhere, got %q", msg.Type)
	}
	if msg.Path != "/src/leaf2.js" {
		t.Fatalf("expected full-reload to carry the changed path, got %q", msg.Path)
	}
}
