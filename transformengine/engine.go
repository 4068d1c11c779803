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

// Package transformengine is the ambient JS-to-ES leaf of the plugin
// pipeline: a fast native TypeScript/JSX-to-ESM transform (esbuild) and a
// CSS-to-JS-module wrapper, both consumed before the rewriter runs over
// the resulting body. Dependency extraction is NOT this package's job —
// rewrite.Engine already walks the AST for specifiers via the queries
// package, so there is no second traversal here (the teacher's
// extractDependencies, which depended on the now-deleted modulegraph
// package, has no equivalent need in this pipeline).
package transformengine

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

type Loader string

const (
	LoaderTS  Loader = "ts"
	LoaderTSX Loader = "tsx"
	LoaderJS  Loader = "js"
	LoaderJSX Loader = "jsx"
)

type Target string

const (
	ES2015 Target = "es2015"
	ES2018 Target = "es2018"
	ES2020 Target = "es2020"
	ES2022 Target = "es2022"
	ESNext Target = "esnext"
)

func IsValidTarget(t string) bool {
	switch Target(t) {
	case ES2015, ES2018, ES2020, ES2022, ESNext:
		return true
	default:
		return false
	}
}

type SourceMapMode string

const (
	SourceMapInline   SourceMapMode = "inline"
	SourceMapExternal SourceMapMode = "external"
	SourceMapNone     SourceMapMode = "none"
)

type TransformOptions struct {
	Loader      Loader
	Target      Target
	Sourcemap   SourceMapMode
	TsconfigRaw string
	Sourcefile  string
}

type TransformResult struct {
	Code []byte
	Map  []byte
}

// TransformTypeScript compiles TS/TSX/JSX source to ES module JavaScript.
func TransformTypeScript(source []byte, opts TransformOptions) (*TransformResult, error) {
	loader := api.LoaderTS
	switch opts.Loader {
	case LoaderTSX:
		loader = api.LoaderTSX
	case LoaderJS:
		loader = api.LoaderJS
	case LoaderJSX:
		loader = api.LoaderJSX
	}

	target := api.ES2022
	switch opts.Target {
	case ES2015:
		target = api.ES2015
	case ES2018:
		target = api.ES2018
	case ES2020:
		target = api.ES2020
	case ES2022:
		target = api.ES2022
	case ESNext:
		target = api.ESNext
	}

	sourcemap := api.SourceMapInline
	switch opts.Sourcemap {
	case SourceMapExternal:
		sourcemap = api.SourceMapExternal
	case SourceMapNone:
		sourcemap = api.SourceMapNone
	}

	tsconfigRaw := opts.TsconfigRaw
	if tsconfigRaw == "" {
		tsconfigRaw = `{"compilerOptions":{"importHelpers":false}}`
	}

	result := api.Transform(string(source), api.TransformOptions{
		Loader:      loader,
		Target:      target,
		Format:      api.FormatESModule,
		Sourcemap:   sourcemap,
		Sourcefile:  opts.Sourcefile,
		TsconfigRaw: tsconfigRaw,
	})

	if len(result.Errors) > 0 {
		var b strings.Builder
		b.WriteString("transform failed:\n")
		for _, e := range result.Errors {
			fmt.Fprintf(&b, "  %s\n", e.Text)
		}
		return nil, fmt.Errorf("%s", b.String())
	}

	return &TransformResult{Code: result.Code, Map: result.Map}, nil
}

// stringToTemplateLiteral escapes str for safe inclusion inside a JS
// template literal, following Lit's stringToTemplateLiteral escaping rule:
// /\\|`|\$(?={)|(?<=<)\//g.
func stringToTemplateLiteral(str string) string {
	var out strings.Builder
	out.Grow(len(str) + 16)

	prev := rune(0)
	runes := []rune(str)
	for i, c := range runes {
		switch c {
		case '\\', '`':
			out.WriteRune('\\')
			out.WriteRune(c)
		case '$':
			if i+1 < len(runes) && runes[i+1] == '{' {
				out.WriteString("\\$")
			} else {
				out.WriteRune(c)
			}
		case '/':
			if prev == '<' {
				out.WriteString("\\/")
			} else {
				out.WriteRune(c)
			}
		default:
			out.WriteRune(c)
		}
		prev = c
	}
	return out.String()
}

// TransformCSS wraps CSS source in a JS module exporting a CSSStyleSheet,
// the "non-JS-as-JS" wrapper shape the §6 ?import marker convention
// expects for stylesheet imports.
func TransformCSS(source []byte, publicPath string) string {
	css := stringToTemplateLiteral(string(source))
	return fmt.Sprintf(`// [served] %s
const sheet = new CSSStyleSheet();
sheet.replaceSync(%s);
export default sheet;
`, publicPath, "`"+css+"`")
}
