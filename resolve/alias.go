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
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/dunglas/go-urlpattern"
	"github.com/gosimple/slug"

	"go.esmdev.dev/server/config"
)

// urlPatternBaseURL is a placeholder absolute base URL required by the
// URLPattern constructor even when only relative-pattern matching is used.
// Grounded on serve/middleware/transform/path_resolver.go's identical
// constant and rationale.
const urlPatternBaseURL = "https://example.com"

type aliasRule struct {
	pattern  *urlpattern.URLPattern
	tmpl     *template.Template
	fromStr  string
	toStr    string
}

func compileAliasRule(from, to string) (*aliasRule, error) {
	pattern, err := urlpattern.New(from, urlPatternBaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL pattern %q: %w", from, err)
	}

	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
		"slug":  slug.Make,
	}

	tmpl, err := template.New("alias").Funcs(funcMap).Parse(to)
	if err != nil {
		return nil, fmt.Errorf("invalid template %q: %w", to, err)
	}

	return &aliasRule{pattern: pattern, tmpl: tmpl, fromStr: from, toStr: to}, nil
}

func (ar *aliasRule) apply(id string) (string, bool) {
	testURL := urlPatternBaseURL + id
	result := ar.pattern.Exec(testURL, "")
	if result == nil {
		return "", false
	}

	data := make(map[string]any)
	for k, v := range result.Pathname.Groups {
		data[k] = v
	}

	var buf bytes.Buffer
	if err := ar.tmpl.Execute(&buf, data); err != nil {
		return "", false
	}

	out := buf.String()
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}
	return out, true
}

// ValidateURLRewrites fails fast on any rule that cannot be compiled,
// meant to be called once at startup.
func ValidateURLRewrites(rewrites []config.URLRewrite) error {
	for _, rw := range rewrites {
		if _, err := compileAliasRule(rw.URLPattern, rw.URLTemplate); err != nil {
			return err
		}
	}
	return nil
}
