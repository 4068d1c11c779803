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

// Package graph maintains the bidirectional importer/importee relation
// between ES modules, the HMR-boundary bookkeeping derived from it, and
// per-module version stamps used to bust the browser's HTTP cache for
// transitively-stale modules.
package graph

import (
	"slices"
	"sync"
)

// Graph is the process-wide import graph for one server instance. It is
// never garbage collected during a session: memory is bounded by the
// served project's module count, per spec.
//
// Concurrency follows the pattern read off the teacher's ExportTracker/
// DependencyTracker (lsp/types/module_graph_tracking.go): one RWMutex
// guarding plain maps, dedup on insert via slices.Contains, and getters
// that return defensive copies so callers can't mutate internal state.
type Graph struct {
	mu sync.RWMutex

	importers map[string][]string // cleanId -> who imports me
	importees map[string][]string // cleanId -> who I import

	hmrBoundaries map[string]struct{}   // self-accepting modules
	acceptedBy    map[string][]string   // importee cleanId -> accepting modules
	dirtyByTS     map[int64][]string    // timestamp -> dirty cleanIds
	latestVersion map[string]int64      // cleanId -> last known version
}

func New() *Graph {
	return &Graph{
		importers:     make(map[string][]string),
		importees:     make(map[string][]string),
		hmrBoundaries: make(map[string]struct{}),
		acceptedBy:    make(map[string][]string),
		dirtyByTS:     make(map[int64][]string),
		latestVersion: make(map[string]int64),
	}
}

// EnsureEntry guarantees cleanId has (possibly empty) importer/importee
// slices, so lookups never need a nil check.
func (g *Graph) EnsureEntry(cleanId string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureEntryLocked(cleanId)
}

func (g *Graph) ensureEntryLocked(cleanId string) {
	if _, ok := g.importers[cleanId]; !ok {
		g.importers[cleanId] = nil
	}
	if _, ok := g.importees[cleanId]; !ok {
		g.importees[cleanId] = nil
	}
}

// AddEdge records that importer imports importee, maintaining invariant I1
// (b ∈ importers[a] ⇔ a ∈ importees[b]) by updating both maps together.
func (g *Graph) AddEdge(importee, importer string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensureEntryLocked(importee)
	g.ensureEntryLocked(importer)

	if !slices.Contains(g.importers[importee], importer) {
		g.importers[importee] = append(g.importers[importee], importer)
	}
	if !slices.Contains(g.importees[importer], importee) {
		g.importees[importer] = append(g.importees[importer], importee)
	}
}

// RemoveEdge is the inverse of AddEdge.
func (g *Graph) RemoveEdge(importee, importer string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.importers[importee] = remove(g.importers[importee], importer)
	g.importees[importer] = remove(g.importees[importer], importee)
}

func remove(s []string, v string) []string {
	out := s[:0:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// ReconcileImportees replaces importer's importee set with curr, removing
// importer from the importers list of anything in prev\curr — the C3 step
// 6 reconciliation run after every rewrite.
func (g *Graph) ReconcileImportees(importer string, curr []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensureEntryLocked(importer)
	prev := g.importees[importer]

	currSet := make(map[string]struct{}, len(curr))
	for _, c := range curr {
		currSet[c] = struct{}{}
	}

	for _, p := range prev {
		if _, stillThere := currSet[p]; !stillThere {
			g.importers[p] = remove(g.importers[p], importer)
		}
	}

	for _, c := range curr {
		g.ensureEntryLocked(c)
		if !slices.Contains(g.importers[c], importer) {
			g.importers[c] = append(g.importers[c], importer)
		}
	}

	g.importees[importer] = slices.Clone(curr)
}

// Importers returns a defensive copy of who imports cleanId.
func (g *Graph) Importers(cleanId string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.importers[cleanId])
}

// Importees returns a defensive copy of what cleanId imports.
func (g *Graph) Importees(cleanId string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.importees[cleanId])
}

// ClearImportees empties importer's importee set without touching
// importers, per the spec's `unlink` handling: callers still referencing a
// deleted module should see a clear 404 rather than a graph panic.
func (g *Graph) ClearImportees(cleanId string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, importee := range g.importees[cleanId] {
		g.importers[importee] = remove(g.importers[importee], cleanId)
	}
	g.importees[cleanId] = nil
}

// MarkSelfAccepting records that cleanId calls import.meta.hot.accept()
// with no dependency list — an HMR boundary.
func (g *Graph) MarkSelfAccepting(cleanId string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hmrBoundaries[cleanId] = struct{}{}
}

func (g *Graph) IsSelfAccepting(cleanId string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.hmrBoundaries[cleanId]
	return ok
}

// AcceptDependency records that accepter explicitly accepts importee via
// import.meta.hot.accept([dep], cb).
func (g *Graph) AcceptDependency(importee, accepter string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !slices.Contains(g.acceptedBy[importee], accepter) {
		g.acceptedBy[importee] = append(g.acceptedBy[importee], accepter)
	}
}

// AcceptsImportee returns a copy of the set of modules recorded as
// accepting importee.
func (g *Graph) AcceptsImportee(importee string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.acceptedBy[importee])
}

// MarkDirty records cleanIds as dirty at timestamp ts.
func (g *Graph) MarkDirty(ts int64, cleanIds []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	existing := g.dirtyByTS[ts]
	for _, id := range cleanIds {
		if !slices.Contains(existing, id) {
			existing = append(existing, id)
		}
	}
	g.dirtyByTS[ts] = existing
}

// IsDirtyAt reports whether cleanId is in the dirty set recorded at ts.
func (g *Graph) IsDirtyAt(ts int64, cleanId string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Contains(g.dirtyByTS[ts], cleanId)
}

// RecordVersion stamps cleanId's latest known version, enforcing I4
// (monotonically non-decreasing) by ignoring out-of-order, older stamps.
func (g *Graph) RecordVersion(cleanId string, ts int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.latestVersion[cleanId]; !ok || ts >= cur {
		g.latestVersion[cleanId] = ts
	}
}

// LatestVersion returns (version, true) if cleanId has a recorded version.
func (g *Graph) LatestVersion(cleanId string) (int64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.latestVersion[cleanId]
	return v, ok
}

// WalkResult is the outcome of a BFS boundary walk starting at a changed
// module (C6 step 2).
type WalkResult struct {
	FullReload bool
	Boundaries []string // self-accepting or accepted-by boundary cleanIds
	Visited    []string // every non-boundary node the walk passed through
}

// WalkUpward performs the BFS described in spec.md 4.6 step 2: starting at
// cleanId, visit importers breadth-first; a self-accepting node or a node
// explicitly accepted by one of its importers becomes a boundary and is not
// recursed through; reaching a node with no importers anywhere in the walk
// triggers a full reload.
func (g *Graph) WalkUpward(cleanId string) WalkResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result WalkResult
	visitedSet := map[string]struct{}{cleanId: {}}
	queue := []string{cleanId}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		if _, isBoundary := g.hmrBoundaries[n]; isBoundary {
			result.Boundaries = append(result.Boundaries, n)
			continue
		}
		if accepters := g.acceptedBy[n]; len(accepters) > 0 {
			result.Boundaries = append(result.Boundaries, n)
			continue
		}

		importers := g.importers[n]
		if len(importers) == 0 {
			return WalkResult{FullReload: true}
		}
		result.Visited = append(result.Visited, n)

		for _, imp := range importers {
			if _, seen := visitedSet[imp]; seen {
				continue
			}
			visitedSet[imp] = struct{}{}
			queue = append(queue, imp)
		}
	}

	return result
}
