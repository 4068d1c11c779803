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

package transformengine

import (
	"strings"
	"testing"
)

func TestIsValidTarget(t *testing.T) {
	for _, target := range []string{"es2015", "es2018", "es2020", "es2022", "esnext"} {
		if !IsValidTarget(target) {
			t.Errorf("expected %q to be a valid target", target)
		}
	}
	if IsValidTarget("es3") {
		t.Fatal("expected an unknown target to be rejected")
	}
}

func TestTransformTypeScript_StripsTypeAnnotations(t *testing.T) {
	src := `export const add = (a: number, b: number): number => a + b;`
	result, err := TransformTypeScript([]byte(src), TransformOptions{
		Loader:    LoaderTS,
		Target:    ES2022,
		Sourcemap: SourceMapNone,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	code := string(result.Code)
	if strings.Contains(code, ": number") {
		t.Fatalf("expected type annotations stripped, got %q", code)
	}
	if !strings.Contains(code, "add") {
		t.Fatalf("expected compiled output to retain the export, got %q", code)
	}
}

func TestTransformTypeScript_ReportsSyntaxErrors(t *testing.T) {
	_, err := TransformTypeScript([]byte(`const x: = ;`), TransformOptions{
		Loader:    LoaderTS,
		Target:    ES2022,
		Sourcemap: SourceMapNone,
	})
	if err == nil {
		t.Fatal("expected a transform error for invalid syntax")
	}
}

func TestTransformCSS_WrapsAsConstructableStylesheet(t *testing.T) {
	out := TransformCSS([]byte(`:host { color: red; }`), "/components/widget.css")
	if !strings.Contains(out, "new CSSStyleSheet()") {
		t.Fatalf("expected a constructable stylesheet wrapper, got %q", out)
	}
	if !strings.Contains(out, "export default sheet;") {
		t.Fatalf("expected a default export, got %q", out)
	}
	if !strings.Contains(out, ":host { color: red; }") {
		t.Fatalf("expected the CSS body embedded verbatim, got %q", out)
	}
}

// TestTransformCSS_EscapesTemplateLiteralMetacharacters covers two parts
// of the Lit stringToTemplateLiteral escaping rule: embedded backticks and
// ${ must come out escaped.
func TestTransformCSS_EscapesTemplateLiteralMetacharacters(t *testing.T) {
	out := TransformCSS([]byte("content: '`back`tick'; /* \\slash */ a:after{content:'${x}'}"), "/x.css")
	if strings.Contains(out, "`back`") {
		t.Fatalf("expected embedded backticks to be escaped, got %q", out)
	}
	if !strings.Contains(out, "\\$") {
		t.Fatalf("expected ${ to be escaped to avoid template interpolation, got %q", out)
	}
}
