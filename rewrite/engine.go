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
	"errors"
	"fmt"
	"strconv"
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"

	"go.esmdev.dev/server/cache"
	"go.esmdev.dev/server/graph"
	"go.esmdev.dev/server/queries"
	"go.esmdev.dev/server/resolve"
)

// Logger is the narrow logging surface Engine needs; satisfied by
// logger.Logger.
type Logger interface {
	Warning(format string, args ...any)
	Debug(format string, args ...any)
}

// ParseError marks a lexer failure; per §7 these never reach the client —
// the rewriter logs and serves the original body unchanged.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse error in %s: %v", e.Path, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// Engine is the C3 import lexer & rewriter.
type Engine struct {
	resolver *resolve.Resolver
	graph    *graph.Graph
	cache    *cache.RewriteCache
	logger   Logger

	clientPublicPath string
	envPublicPath    string
}

func NewEngine(resolver *resolve.Resolver, g *graph.Graph, rc *cache.RewriteCache, clientPublicPath, envPublicPath string, logger Logger) *Engine {
	return &Engine{
		resolver:         resolver,
		graph:            g,
		cache:            rc,
		logger:           logger,
		clientPublicPath: clientPublicPath,
		envPublicPath:    envPublicPath,
	}
}

// Request bundles the inputs the rewriter needs from the HTTP layer for
// one response body.
type Request struct {
	PublicPath      string // the request's own publicPath (importer identity)
	Body            []byte
	IsHMRRefetch    bool  // true if the request carried a ?t= query
	ActiveTimestamp int64 // the ?t= value, if IsHMRRefetch
}

// Rewrite runs the full C3 algorithm over one response body and returns
// the rewritten bytes.
func (e *Engine) Rewrite(req Request) []byte {
	cleanImporter := resolve.CleanURL(req.PublicPath)

	cacheKey := cache.NewRewriteKey(req.PublicPath, req.Body)
	if !req.IsHMRRefetch {
		if cached, ok := e.cache.Get(cacheKey); ok {
			return cached
		}
	}

	rewritten, importees, parsed := e.rewriteSource(cleanImporter, req.Body, req.ActiveTimestamp)

	if parsed {
		e.graph.ReconcileImportees(cleanImporter, importees)
	}

	if !req.IsHMRRefetch {
		e.cache.Set(cacheKey, rewritten)
	}
	return rewritten
}

func (e *Engine) rewriteSource(importer string, source []byte, activeTimestamp int64) ([]byte, []string, bool) {
	parser := queries.RetrieveTypeScriptParser()
	defer queries.PutTypeScriptParser(parser)

	tree := parser.Parse(source, nil)
	if tree == nil {
		e.warn("parse failure for %s, serving unchanged", importer)
		return source, nil, false
	}
	defer tree.Close()

	qm, err := queries.GetGlobalQueryManager()
	if err != nil {
		e.warn("query manager unavailable: %v", err)
		return source, nil, false
	}

	editor := NewEditor(source)
	var importees []string

	if importMatcher, err := queries.NewQueryMatcher(qm, "imports"); err == nil {
		defer importMatcher.Close()
		importees = e.collectImportEdits(tree.RootNode(), source, importMatcher, importer, activeTimestamp, editor)
	}

	hasHot := strings.Contains(string(source), "import.meta.hot")
	hasEnv := strings.Contains(string(source), "import.meta.env")

	if hasHot {
		e.injectHMR(tree.RootNode(), source, importer, qm)
		editor.Add(Edit{Start: 0, End: 0, Text: hmrPreamble(e.clientPublicPath, importer)})
	}
	if hasEnv {
		editor.Add(Edit{Start: 0, End: 0, Text: envPreamble(e.envPublicPath)})
	}

	return editor.Apply(), importees, true
}

// collectImportEdits walks static/dynamic import captures, resolves each
// rewritable specifier, queues an Editor edit, and returns the set of
// resolved importee cleanIds for graph reconciliation.
func (e *Engine) collectImportEdits(root *ts.Node, source []byte, matcher *queries.QueryMatcher, importer string, activeTimestamp int64, editor *Editor) []string {
	var importees []string
	seen := make(map[string]struct{})

	for cm := range matcher.Captures(root, source) {
		var nodeInfo queries.CaptureInfo
		switch {
		case len(cm["import.source"]) > 0:
			nodeInfo = cm["import.source"][0]
		case len(cm["import.dynamic.source"]) > 0:
			nodeInfo = cm["import.dynamic.source"][0]
		case len(cm["import.dynamic.nonliteral"]) > 0:
			// This pattern also matches string-literal arguments, which the
			// import.dynamic.source match already handles.
			if arg := cm["import.dynamic.nonliteral"][0].Text; strings.HasPrefix(arg, `"`) || strings.HasPrefix(arg, `'`) {
				continue
			}
			// Dynamic import with a non-literal expression argument: leave
			// untouched per spec.
			e.debug("skipping non-literal dynamic import in %s", importer)
			continue
		default:
			continue
		}

		id := nodeInfo.Text
		if resolve.IsExternalURL(id) {
			continue
		}

		resolved, err := e.resolveImport(importer, id, activeTimestamp)
		if err != nil {
			e.warn("resolve error for %q from %s: %v", id, importer, err)
			continue
		}

		if resolved != id {
			editor.Add(Edit{Start: nodeInfo.StartByte, End: nodeInfo.EndByte, Text: resolved})
		}

		importee := resolve.CleanURL(resolved)
		if importee != importer && importee != e.clientPublicPath {
			if _, dup := seen[importee]; !dup {
				seen[importee] = struct{}{}
				importees = append(importees, importee)
			}
		}
	}

	return importees
}

// resolveImport implements the resolveImport contract from spec.md 4.3:
// alias, bare-module mount, relative normalization, ?import marker for
// non-JS assets, and ?t=/&t= version stamping.
//
// activeTimestamp is the ?t= value carried by the *importer's own*
// request, when this rewrite is happening as part of an HMR-triggered
// refetch; 0 means there is no active propagation timestamp for this
// request and only latestVersions stamping applies.
func (e *Engine) resolveImport(importer, id string, activeTimestamp int64) (string, error) {
	aliased := e.resolver.Alias(id)

	var resolvedPath string
	switch resolve.ClassifySpecifier(aliased) {
	case resolve.KindBare:
		mapped, err := e.resolver.ResolveBareModule(aliased)
		if err != nil {
			var re *resolve.ResolveError
			if errors.As(err, &re) && re.Importer == "" {
				re.Importer = importer
			}
			return "", err
		}
		resolvedPath = mapped
	case resolve.KindExternalURL, resolve.KindDataURL:
		return aliased, nil
	default:
		rr := e.resolver.ResolveRelativeRequest(importer, aliased)
		resolvedPath = e.resolver.NormalizePublicPath(rr.Pathname) + rr.Query
	}

	cleanId := resolve.CleanURL(resolvedPath)
	query := strings.TrimPrefix(resolvedPath, cleanId)

	ext := extOf(cleanId)
	if ext != "" && !resolve.IsJSSourceExtension(ext) && query == "" {
		query = "?import"
	}

	if activeTimestamp != 0 && e.graph.IsDirtyAt(activeTimestamp, cleanId) {
		query = appendQuery(query, "t="+strconv.FormatInt(activeTimestamp, 10))
	} else if v, ok := e.graph.LatestVersion(cleanId); ok {
		query = appendQuery(query, "t="+strconv.FormatInt(v, 10))
	}

	return cleanId + query, nil
}

func appendQuery(query, kv string) string {
	if query == "" {
		return "?" + kv
	}
	return query + "&" + kv
}

func extOf(p string) string {
	idx := strings.LastIndex(p, ".")
	slash := strings.LastIndex(p, "/")
	if idx <= slash {
		return ""
	}
	return p[idx:]
}

func hmrPreamble(clientPublicPath, importerCleanId string) string {
	return fmt.Sprintf(
		"import { createHotContext } from %q; import.meta.hot = createHotContext(%q);\n",
		clientPublicPath, importerCleanId,
	)
}

func envPreamble(envPublicPath string) string {
	return fmt.Sprintf(
		"import __ENV__ from %q; import.meta.env = __ENV__;\n",
		envPublicPath,
	)
}

// injectHMR scans for import.meta.hot.accept(...) calls and records
// hmrBoundaries/acceptedBy edges in the graph, per spec.md 4.6's "HMR code
// injection" subsection.
func (e *Engine) injectHMR(root *ts.Node, source []byte, importer string, qm *queries.QueryManager) {
	matcher, err := queries.NewQueryMatcher(qm, "hotAccept")
	if err != nil {
		return
	}
	defer matcher.Close()

	for cm := range matcher.Captures(root, source) {
		if len(cm["accept.no-args"]) > 0 {
			e.graph.MarkSelfAccepting(importer)
			continue
		}
		if deps := cm["accept.dep"]; len(deps) > 0 {
			for _, dep := range deps {
				resolved, err := e.resolveImport(importer, dep.Text, 0)
				if err != nil {
					continue
				}
				e.graph.AcceptDependency(resolve.CleanURL(resolved), importer)
			}
		}
	}
}

func (e *Engine) warn(format string, args ...any) {
	if e.logger != nil {
		e.logger.Warning(format, args...)
	}
}

func (e *Engine) debug(format string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(format, args...)
	}
}
