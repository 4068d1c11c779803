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
	"encoding/json"

	"go.esmdev.dev/server/graph"
)

// UpdateKind is the per-update "type" field in the wire message.
type UpdateKind string

const (
	UpdateJS          UpdateKind = "js-update"
	UpdateVueReload   UpdateKind = "vue-reload"
	UpdateVueRerender UpdateKind = "vue-rerender"
	UpdateStyle       UpdateKind = "style-update"
	UpdateStyleRemove UpdateKind = "style-remove"
)

// Update is one entry in a Message's updates list.
type Update struct {
	Type         UpdateKind `json:"type"`
	Path         string     `json:"path"`
	AcceptedPath string     `json:"acceptedPath"`
	Timestamp    int64      `json:"timestamp"`
}

// Message is the exact wire schema from spec.md 4.6.
type Message struct {
	Type      string   `json:"type"` // "update" | "full-reload"
	Timestamp int64    `json:"timestamp"`
	Path      string   `json:"path,omitempty"` // present on full-reload
	Updates   []Update `json:"updates,omitempty"`
}

func (m Message) Marshal() []byte {
	b, err := json.Marshal(m)
	if err != nil {
		return []byte(`{"type":"full-reload"}`)
	}
	return b
}

// Propagator implements C6: given a changed module's cleanId and a
// monotonic timestamp, it walks the graph, builds the update message, and
// hands it to a Hub to broadcast.
type Propagator struct {
	graph *graph.Graph
	hub   *Hub
}

func NewPropagator(g *graph.Graph, hub *Hub) *Propagator {
	return &Propagator{graph: g, hub: hub}
}

// Propagate runs spec.md 4.6's full algorithm for one change event.
func (p *Propagator) Propagate(cleanId string, ts int64) Message {
	p.graph.RecordVersion(cleanId, ts)

	walk := p.graph.WalkUpward(cleanId)

	if walk.FullReload {
		msg := Message{Type: "full-reload", Timestamp: ts, Path: cleanId}
		p.hub.Broadcast(msg.Marshal())
		return msg
	}

	dirty := append([]string{cleanId}, walk.Visited...)
	p.graph.MarkDirty(ts, dirty)

	updates := make([]Update, 0, len(walk.Boundaries))
	for _, boundary := range walk.Boundaries {
		updates = append(updates, Update{
			Type:         UpdateJS,
			Path:         cleanId,
			AcceptedPath: boundary,
			Timestamp:    ts,
		})
	}

	msg := Message{Type: "update", Timestamp: ts, Updates: updates}
	p.hub.Broadcast(msg.Marshal())
	return msg
}
