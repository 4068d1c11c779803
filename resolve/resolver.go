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
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/tidwall/gjson"

	"go.esmdev.dev/server/config"
	"go.esmdev.dev/server/internal/platform"
)

var ErrNotFound = errors.New("not found")

// ResolveError is returned when a bare specifier cannot be resolved,
// naming the importer and specifier per §7's taxonomy.
type ResolveError struct {
	Importer  string
	Specifier string
	Suggest   string
}

func (e *ResolveError) Error() string {
	msg := fmt.Sprintf("cannot resolve %q from %q", e.Specifier, e.Importer)
	if e.Suggest != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggest)
	}
	return msg
}

// Resolver implements C2's five operations against one project root.
type Resolver struct {
	root  string
	fs    platform.FileSystem
	rules []*aliasRule

	moduleMountPoint string // default "/@modules"
}

// New constructs a Resolver rooted at root, compiling alias rules from
// urlRewrites (invalid rules are skipped; call ValidateURLRewrites at
// startup to fail fast instead).
func New(root string, urlRewrites []config.URLRewrite, fs platform.FileSystem) *Resolver {
	r := &Resolver{root: root, fs: fs, moduleMountPoint: "/@modules"}
	for _, rw := range urlRewrites {
		if rule, err := compileAliasRule(rw.URLPattern, rw.URLTemplate); err == nil {
			r.rules = append(r.rules, rule)
		}
	}
	return r
}

// Alias applies the first matching user-defined prefix rewrite to id,
// returning id unchanged if none match.
func (r *Resolver) Alias(id string) string {
	for _, rule := range r.rules {
		if out, ok := rule.apply(id); ok {
			return out
		}
	}
	return id
}

// ResolvedRequest is the (pathname, query) pair produced by
// ResolveRelativeRequest.
type ResolvedRequest struct {
	Pathname string
	Query    string
}

// ResolveRelativeRequest merges importer's directory with a relative id;
// absolute ids pass through unchanged.
func (r *Resolver) ResolveRelativeRequest(importer, id string) ResolvedRequest {
	specifierPath, query, _ := strings.Cut(id, "?")
	if query != "" {
		query = "?" + query
	}

	if strings.HasPrefix(specifierPath, "/") {
		return ResolvedRequest{Pathname: specifierPath, Query: query}
	}

	importerDir := path.Dir(CleanURL(importer))
	merged := path.Join(importerDir, specifierPath)
	if !strings.HasPrefix(merged, "/") {
		merged = "/" + merged
	}
	return ResolvedRequest{Pathname: merged, Query: query}
}

// NormalizePublicPath resolves index files and adds missing extensions by
// probing the filesystem, in the deterministic order the spec specifies:
// exact match, then each jsSrcExtensions candidate, then /index.<ext>.
func (r *Resolver) NormalizePublicPath(p string) string {
	clean := CleanURL(p)
	query := strings.TrimPrefix(p, clean)

	if r.fileExistsForRequest(clean) {
		return p
	}

	for _, ext := range jsSrcExtensions {
		candidate := clean + ext
		if r.fileExistsForRequest(candidate) {
			return candidate + query
		}
	}

	for _, ext := range jsSrcExtensions {
		candidate := path.Join(clean, "index"+ext)
		if r.fileExistsForRequest(candidate) {
			return candidate + query
		}
	}

	return p
}

func (r *Resolver) fileExistsForRequest(requestPath string) bool {
	abs := r.RequestToFile(requestPath)
	if abs == "" {
		return false
	}
	stat, err := r.fs.Stat(abs)
	if err != nil {
		return false
	}
	return !stat.IsDir()
}

// FileToRequest converts an absolute filesystem path under root to a
// PublicPath.
func (r *Resolver) FileToRequest(absPath string) string {
	rel, err := filepath.Rel(r.root, absPath)
	if err != nil {
		return absPath
	}
	return "/" + filepath.ToSlash(rel)
}

// RequestToFile is the inverse of FileToRequest, guarding against escape
// above root via ".." traversal.
func (r *Resolver) RequestToFile(publicPath string) string {
	clean := CleanURL(publicPath)
	clean = strings.TrimPrefix(clean, "/")
	full := filepath.Join(r.root, filepath.FromSlash(clean))

	rel, err := filepath.Rel(r.root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return full
}

// packageManifest is the subset of package.json fields bare-module
// resolution needs, probed via gjson rather than a full json.Unmarshal —
// the resolver only ever reads module|main|exports|name for one package at
// a time, which is exactly the lightweight single-field-probe case gjson
// is for.
type packageManifest struct {
	Name    string
	Entry   string
	Exports map[string]string
}

func readPackageManifest(fs platform.FileSystem, pkgJSONPath string) (*packageManifest, error) {
	data, err := fs.ReadFile(pkgJSONPath)
	if err != nil {
		return nil, err
	}
	result := gjson.ParseBytes(data)

	pm := &packageManifest{Name: result.Get("name").String()}
	if entry := result.Get("module"); entry.Exists() {
		pm.Entry = entry.String()
	} else if entry := result.Get("main"); entry.Exists() {
		pm.Entry = entry.String()
	} else {
		pm.Entry = "index.js"
	}

	if exp := result.Get("exports"); exp.IsObject() {
		pm.Exports = make(map[string]string)
		exp.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.String {
				pm.Exports[key.String()] = value.String()
			} else if sub := value.Get("import"); sub.Exists() {
				pm.Exports[key.String()] = sub.String()
			}
			return true
		})
	}

	return pm, nil
}

// ResolveBareModule maps a bare specifier to /@modules/<pkg>/<entry>,
// reading the package manifest's module|main field and respecting subpath
// imports ("pkg/sub"). Workspace-hoisted node_modules are discovered by
// walking upward from root exactly as findWorkspaceRootForServe does,
// stopping at a .git boundary (see SPEC_FULL.md's SUPPLEMENTED FEATURES).
func (r *Resolver) ResolveBareModule(id string) (string, error) {
	pkgName, subpath := splitBareSpecifier(id)

	nodeModulesDir := r.findNodeModulesDir()
	if nodeModulesDir == "" {
		return "", &ResolveError{Specifier: id, Suggest: ""}
	}

	pkgDir := filepath.Join(nodeModulesDir, filepath.FromSlash(pkgName))
	pkgJSONPath := filepath.Join(pkgDir, "package.json")

	manifest, err := readPackageManifest(r.fs, pkgJSONPath)
	if err != nil {
		return "", r.resolveErrorWithSuggestion(nodeModulesDir, id)
	}

	entry := manifest.Entry
	if subpath != "" {
		if mapped, ok := manifest.Exports["./"+subpath]; ok {
			entry = mapped
		} else {
			entry = subpath
		}
	}

	entry = strings.TrimPrefix(entry, "./")
	return path.Join(r.moduleMountPoint, pkgName, entry), nil
}

func splitBareSpecifier(id string) (pkgName, subpath string) {
	parts := strings.SplitN(id, "/", 2)
	if strings.HasPrefix(id, "@") && len(parts) > 1 {
		// scoped package: @scope/name[/subpath]
		scopedParts := strings.SplitN(parts[1], "/", 2)
		pkgName = parts[0] + "/" + scopedParts[0]
		if len(scopedParts) > 1 {
			subpath = scopedParts[1]
		}
		return
	}
	pkgName = parts[0]
	if len(parts) > 1 {
		subpath = parts[1]
	}
	return
}

// ModuleFilePath maps a /@modules/<pkg>[/<subpath>] request to an absolute
// filesystem path under the discovered node_modules directory, for the
// bare-module leaf handler. Returns "" if no node_modules directory can be
// found or publicPath escapes it.
func (r *Resolver) ModuleFilePath(publicPath string) string {
	clean := CleanURL(publicPath)
	rest := strings.TrimPrefix(clean, r.moduleMountPoint)
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return ""
	}

	nodeModulesDir := r.findNodeModulesDir()
	if nodeModulesDir == "" {
		return ""
	}

	full := filepath.Join(nodeModulesDir, filepath.FromSlash(rest))
	rel, err := filepath.Rel(nodeModulesDir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return full
}

// ModuleMountPoint returns the bare-module URL prefix (default /@modules).
func (r *Resolver) ModuleMountPoint() string { return r.moduleMountPoint }

// findNodeModulesDir walks from root upward looking for a node_modules
// directory, stopping at a .git boundary.
func (r *Resolver) findNodeModulesDir() string {
	dir := r.root
	for {
		candidate := filepath.Join(dir, "node_modules")
		if stat, err := r.fs.Stat(candidate); err == nil && stat.IsDir() {
			return candidate
		}

		gitDir := filepath.Join(dir, ".git")
		if stat, err := r.fs.Stat(gitDir); err == nil && stat.IsDir() {
			return ""
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// resolveErrorWithSuggestion scans installed package names for a close
// Levenshtein match to improve the ResolveError message quality.
func (r *Resolver) resolveErrorWithSuggestion(nodeModulesDir, id string) error {
	entries, err := r.fs.ReadDir(nodeModulesDir)
	if err != nil {
		return &ResolveError{Specifier: id}
	}

	best := ""
	bestDist := 1 << 30
	pkgName, _ := splitBareSpecifier(id)
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		d := levenshtein.Distance(pkgName, e.Name(), nil)
		if d < bestDist {
			bestDist = d
			best = e.Name()
		}
	}

	suggestion := ""
	if best != "" && bestDist <= 3 {
		suggestion = best
	}
	return &ResolveError{Specifier: id, Suggest: suggestion}
}
