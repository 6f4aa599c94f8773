package redflag

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"go/parser"
	"go/token"
	"io"
	"regexp"
	"strings"

	"github.com/makerflow/runner/internal/core/ports"
)

var extractPattern = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n(.*?)```|<file[^>]*>(.*?)</file>")

// Syntax rejects a sample that fails to parse as the configured language.
// When ExtractXML is set, the content checked is first pulled out of a
// fenced code block or <file> block rather than the raw sample text.
type Syntax struct {
	Language   string
	ExtractXML bool
}

func (s Syntax) Name() string { return "syntax" }

func (s Syntax) Check(_ context.Context, content string) ports.RedFlagVerdict {
	body := content
	if s.ExtractXML {
		if m := extractPattern.FindStringSubmatch(content); m != nil {
			if m[1] != "" {
				body = m[1]
			} else {
				body = m[2]
			}
		}
	}

	switch strings.ToLower(s.Language) {
	case "go":
		fset := token.NewFileSet()
		if _, err := parser.ParseFile(fset, "sample.go", body, parser.AllErrors); err != nil {
			return ports.RedFlagVerdict{Flagged: true, Reason: "invalid go syntax: " + err.Error()}
		}
	case "json":
		var v any
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return ports.RedFlagVerdict{Flagged: true, Reason: "invalid json: " + err.Error()}
		}
	case "xml":
		d := xml.NewDecoder(strings.NewReader(body))
		for {
			if _, err := d.Token(); err != nil {
				if err == io.EOF {
					break
				}
				return ports.RedFlagVerdict{Flagged: true, Reason: "invalid xml: " + err.Error()}
			}
		}
	}
	return ports.RedFlagVerdict{}
}
