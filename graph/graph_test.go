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

package graph

import "testing"

// TestGraph_BidirectionalEdges covers invariant I1: b is in importers[a]
// iff a is in importees[b].
func TestGraph_BidirectionalEdges(t *testing.T) {
	g := New()
	g.AddEdge("/a.js", "/b.js") // b imports a

	if importers := g.Importers("/a.js"); len(importers) != 1 || importers[0] != "/b.js" {
		t.Fatalf("expected /b.js to be an importer of /a.js, got %v", importers)
	}
	if importees := g.Importees("/b.js"); len(importees) != 1 || importees[0] != "/a.js" {
		t.Fatalf("expected /a.js to be an importee of /b.js, got %v", importees)
	}

	g.RemoveEdge("/a.js", "/b.js")
	if importers := g.Importers("/a.js"); len(importers) != 0 {
		t.Fatalf("expected no importers after removal, got %v", importers)
	}
	if importees := g.Importees("/b.js"); len(importees) != 0 {
		t.Fatalf("expected no importees after removal, got %v", importees)
	}
}

// TestGraph_ReconcileImportees drops edges no longer present in the
// current parse and adds the new ones, matching a re-requested module
// whose import list changed.
func TestGraph_ReconcileImportees(t *testing.T) {
	g := New()
	g.ReconcileImportees("/app.js", []string{"/a.js", "/b.js"})

	if importers := g.Importers("/a.js"); len(importers) != 1 {
		t.Fatalf("expected /app.js to import /a.js, got %v", importers)
	}

	g.ReconcileImportees("/app.js", []string{"/b.js", "/c.js"})

	if importers := g.Importers("/a.js"); len(importers) != 0 {
		t.Fatalf("expected /a.js edge dropped, got %v", importers)
	}
	if importers := g.Importers("/c.js"); len(importers) != 1 {
		t.Fatalf("expected /c.js edge added, got %v", importers)
	}
	if importers := g.Importers("/b.js"); len(importers) != 1 {
		t.Fatalf("expected /b.js edge retained, got %v", importers)
	}
}

// TestGraph_WalkUpward_SelfAccept stops the boundary walk at a module that
// called import.meta.hot.accept() with no arguments.
func TestGraph_WalkUpward_SelfAccept(t *testing.T) {
	g := New()
	g.AddEdge("/leaf.js", "/widget.js")
	g.MarkSelfAccepting("/widget.js")

	walk := g.WalkUpward("/leaf.js")
	if walk.FullReload {
		t.Fatal("expected a bounded HMR update, got full-reload")
	}
	if len(walk.Boundaries) != 1 || walk.Boundaries[0] != "/widget.js" {
		t.Fatalf("expected boundary at /widget.js, got %v", walk.Boundaries)
	}
}

// TestGraph_WalkUpward_AcceptDependency stops at the changed dependency
// itself when an importer named it in import.meta.hot.accept(dep, cb):
// the client's listeners map is keyed by the dependency path passed to
// accept(), not by the accepting module's own path, so the boundary the
// walk reports must match that key.
func TestGraph_WalkUpward_AcceptDependency(t *testing.T) {
	g := New()
	g.AddEdge("/leaf.js", "/widget.js")
	g.AcceptDependency("/leaf.js", "/widget.js")

	walk := g.WalkUpward("/leaf.js")
	if walk.FullReload {
		t.Fatal("expected a bounded HMR update, got full-reload")
	}
	if len(walk.Boundaries) != 1 || walk.Boundaries[0] != "/leaf.js" {
		t.Fatalf("expected boundary at /leaf.js, got %v", walk.Boundaries)
	}
}

// TestGraph_WalkUpward_FullReload escalates when the walk reaches a module
// with no importers and no self-accept, i.e. a page entry point.
func TestGraph_WalkUpward_FullReload(t *testing.T) {
	g := New()
	g.AddEdge("/leaf.js", "/widget.js")
	g.AddEdge("/widget.js", "/page.js")

	walk := g.WalkUpward("/leaf.js")
	if !walk.FullReload {
		t.Fatalf("expected full-reload, got bounded update with boundaries %v", walk.Boundaries)
	}
}

// TestGraph_LatestVersion_Monotonic covers invariant I4: latestVersions
// never moves backward even if RecordVersion is called out of order.
func TestGraph_LatestVersion_Monotonic(t *testing.T) {
	g := New()
	g.RecordVersion("/a.js", 100)
	g.RecordVersion("/a.js", 50)

	v, ok := g.LatestVersion("/a.js")
	if !ok || v != 100 {
		t.Fatalf("expected latest version to stay at 100, got %d (ok=%v)", v, ok)
	}

	g.RecordVersion("/a.js", 200)
	v, ok = g.LatestVersion("/a.js")
	if !ok || v != 200 {
		t.Fatalf("expected latest version to advance to 200, got %d (ok=%v)", v, ok)
	}
}

func TestGraph_ClearImportees_RemovesOutgoingEdges(t *testing.T) {
	g := New()
	g.ReconcileImportees("/app.js", []string{"/a.js", "/b.js"})

	g.ClearImportees("/app.js")

	if importers := g.Importers("/a.js"); len(importers) != 0 {
		t.Fatalf("expected no importers of /a.js after clear, got %v", importers)
	}
	if importees := g.Importees("/app.js"); len(importees) != 0 {
		t.Fatalf("expected no importees of /app.js after clear, got %v", importees)
	}
}
