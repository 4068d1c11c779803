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

// Package rewrite implements the import lexer & rewriter (C3): it parses
// every served JS response, rewrites specifiers into server-resolvable
// URLs, injects the HMR/env preambles, and maintains a content-addressed
// rewrite cache.
package rewrite

import "slices"

// Edit replaces source[Start:End] with Text. The editor applies edits in
// descending Start order so earlier edits' byte offsets stay valid — the
// same discipline as import_rewrite.go's reverse-order splice loop,
// generalized from a single fixed-shape rewrite into an arbitrary list of
// non-overlapping edits collected across a whole source file.
type Edit struct {
	Start, End uint
	Text       string
}

// Editor is a minimal offset-preserving string editor (a MagicString/rope
// substitute): collect edits in any order, then Apply splices them into the
// original source from the highest offset down, so that earlier edits
// never shift the offsets later ones were computed against.
type Editor struct {
	source []byte
	edits  []Edit
}

func NewEditor(source []byte) *Editor {
	return &Editor{source: source}
}

func (e *Editor) Add(edit Edit) {
	e.edits = append(e.edits, edit)
}

func (e *Editor) Len() int { return len(e.edits) }

// Apply returns the rewritten source with every queued edit spliced in,
// applied in descending Start order for overlap-free offset stability.
func (e *Editor) Apply() []byte {
	if len(e.edits) == 0 {
		return e.source
	}

	ordered := slices.Clone(e.edits)
	slices.SortStableFunc(ordered, func(a, b Edit) int {
		if a.Start == b.Start {
			return 0
		}
		if a.Start > b.Start {
			return -1
		}
		return 1
	})

	result := slices.Clone(e.source)
	for _, ed := range ordered {
		before := result[:ed.Start]
		after := result[ed.End:]
		next := make([]byte, 0, len(before)+len(ed.Text)+len(after))
		next = append(next, before...)
		next = append(next, ed.Text...)
		next = append(next, after...)
		result = next
	}
	return result
}
