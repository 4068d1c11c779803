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

package server

import (
	"net/http"

	mw "go.esmdev.dev/server/serve/middleware"
)

// Middleware is the standard wrap-a-handler signature, reused from
// serve/middleware's Chain/ResponseRecorder utility rather than redeclared
// here — that package is pure request/response plumbing with no domain
// logic of its own, so it's kept unchanged and exercised directly.
type Middleware = mw.Middleware

// Registry is what a Plugin receives at setup to register its leaf route
// and/or middleware against the shared mux, synchronously, per spec.md §6's
// "Plugin = (ServerContext) → void" ABI.
type Registry struct {
	mux         *http.ServeMux
	middlewares []Middleware
}

func newRegistry(mux *http.ServeMux) *Registry {
	return &Registry{mux: mux}
}

// HandleFunc mounts a leaf handler at pattern.
func (reg *Registry) HandleFunc(pattern string, h http.HandlerFunc) {
	reg.mux.HandleFunc(pattern, h)
}

// Use appends a middleware. Server.buildHandler wraps the HTML-injecting
// mux in the registered middlewares with the first one registered
// outermost, all inside the CORS and logging layers. There is no rewrite
// middleware: JS bodies are rewritten by the serveModule leaf.
func (reg *Registry) Use(m Middleware) {
	reg.middlewares = append(reg.middlewares, m)
}

// Plugin is the external-collaborator ABI: it registers handlers/middleware
// against reg using ctx's shared state, synchronously, at server setup.
type Plugin func(ctx *ServerContext, reg *Registry)

// The six external collaborators named in spec.md §1 as out-of-scope
// ("interfaces only"): each is a plugin stub satisfying the ABI with an
// empty body that registers nothing, so the pipeline's shape is complete even
// though nothing beyond the contract itself is implemented.

// StubVueSFC would compile .vue single-file components; not implemented.
func StubVueSFC(ctx *ServerContext, reg *Registry) {}

// StubCSSLoader would front richer CSS tooling (postcss, @import
// resolution); not implemented — the in-scope ?import wrapper for plain
// CSS-as-JS lives in the static leaf via transformengine.TransformCSS, a
// distinct, much narrower concern from a full CSS loader pipeline.
func StubCSSLoader(ctx *ServerContext, reg *Registry) {}

// StubJSONLoader would front custom JSON transform rules; not implemented.
func StubJSONLoader(ctx *ServerContext, reg *Registry) {}

// StubWASMLoader would front WASM module instantiation wrapping; not
// implemented.
func StubWASMLoader(ctx *ServerContext, reg *Registry) {}

// StubPreBundler would pre-bundle node_modules dependencies (the esbuild/
// Rollup dep-optimization step other no-bundle servers run); not
// implemented — bare modules are served directly from node_modules here.
func StubPreBundler(ctx *ServerContext, reg *Registry) {}

// StubProxy would forward unmatched requests to an upstream dev API;
// not implemented.
func StubProxy(ctx *ServerContext, reg *Registry) {}

// DefaultPlugins is the stub roster registered by New so the
// pipeline's leaf-priority shape (spec.md 4.7) is complete; TLS/H2 server
// construction, the seventh Non-goal collaborator, is not a request leaf
// at all and so has no Plugin stub — it is simply absent from
// Server.Start, which always serves plain HTTP/1.1.
func DefaultPlugins() []Plugin {
	return []Plugin{
		StubVueSFC,
		StubCSSLoader,
		StubJSONLoader,
		StubWASMLoader,
		StubPreBundler,
		StubProxy,
	}
}
