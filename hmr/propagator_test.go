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

package hmr

import (
	"testing"

	"go.esmdev.dev/server/graph"
)

func TestPropagator_SelfAcceptingBoundary(t *testing.T) {
	g := graph.New()
	g.AddEdge("/leaf.js", "/widget.js")
	g.MarkSelfAccepting("/widget.js")

	hub := NewHub(nil)
	p := NewPropagator(g, hub)

	msg := p.Propagate("/leaf.js", 1000)
	if msg.Type != "update" {
		t.Fatalf("expected an update message, got %q", msg.Type)
	}
	if len(msg.Updates) != 1 || msg.Updates[0].AcceptedPath != "/widget.js" {
		t.Fatalf("expected one update accepted at /widget.js, got %v", msg.Updates)
	}
}

func TestPropagator_FullReloadWhenNoBoundary(t *testing.T) {
	g := graph.New()
	g.AddEdge("/leaf.js", "/page.js")

	hub := NewHub(nil)
	p := NewPropagator(g, hub)

	msg := p.Propagate("/leaf.js", 1000)
	if msg.Type != "full-reload" {
		t.Fatalf("expected full-reload, got %q", msg.Type)
	}
	if msg.Path != "/leaf.js" {
		t.Fatalf("expected full-reload to carry the changed path, got %q", msg.Path)
	}
}

func TestPropagator_RecordsVersion(t *testing.T) {
	g := graph.New()
	hub := NewHub(nil)
	p := NewPropagator(g, hub)

	p.Propagate("/leaf.js", 500)
	v, ok := g.LatestVersion("/leaf.js")
	if !ok || v != 500 {
		t.Fatalf("expected latest version 500 recorded, got %d (ok=%v)", v, ok)
	}
}
