// Package formatter renders GitLab webhook payloads as Telegram Markdown.
package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported is returned by a renderer for payloads it cannot describe.
// Render falls back to the raw payload in that case.
var ErrUnsupported = errors.New("unsupported payload")

type renderFunc func(kind string, payload []byte) (string, error)

var renderers = map[string]renderFunc{
	"push":              renderPush,
	"tag_push":          renderTagPush,
	"repository_update": renderRepositoryUpdate,
	"merge_request":     renderMergeRequest,
	"issue":             renderIssue,
	"note":              renderNote,
	"wiki_page":         renderWikiPage,
	"pipeline":          renderPipeline,
}

// System hook event names share a prefix per resource.
var prefixRenderers = []struct {
	prefix string
	render renderFunc
}{
	{"group_", renderGroup},
	{"user_", renderUser},
	{"key_", renderKey},
	{"project_", renderProject},
}

func lookup(kind string) renderFunc {
	if r, ok := renderers[kind]; ok {
		return r
	}
	for _, p := range prefixRenderers {
		if strings.HasPrefix(kind, p.prefix) {
			return p.render
		}
	}
	return nil
}

// Render formats payload of the given event kind. Unknown kinds and
// payloads missing the fields a renderer needs are rendered raw.
func Render(kind string, payload []byte) string {
	if r := lookup(kind); r != nil {
		if text, err := r(kind, payload); err == nil {
			return text
		}
	}
	return Raw(kind, payload)
}

// Supported reports whether kind has a dedicated renderer.
func Supported(kind string) bool {
	return lookup(kind) != nil
}

// Raw renders payload as an indented JSON block.
func Raw(kind string, payload []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		buf.Reset()
		buf.Write(payload)
	}
	return fmt.Sprintf("New event \"*%s*\" without formatter, write one for me!\n```\n%s\n```\n", kind, buf.String())
}

func decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return nil
}

// need fails when any of the named values is empty.
func need(fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i+1] == "" {
			return fmt.Errorf("%w: missing %s", ErrUnsupported, fields[i])
		}
	}
	return nil
}

// escapeURL keeps underscores in link targets from opening italics.
func escapeURL(u string) string {
	return strings.ReplaceAll(u, "_", `\_`)
}

func link(text, url string) string {
	return fmt.Sprintf("[%s](%s)", text, escapeURL(url))
}

func header(path string) string {
	return fmt.Sprintf("*%s*\n\n", path)
}

// refName returns the last segment of a git ref such as refs/heads/main.
func refName(ref string) string {
	return ref[strings.LastIndexByte(ref, '/')+1:]
}

// refType returns the namespace of a git ref: heads or tags.
func refType(ref string) string {
	parts := strings.Split(ref, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// zeroSHA reports the all-zero object id GitLab uses for created or
// deleted refs.
func zeroSHA(sha string) bool {
	return strings.Trim(sha, "0") == ""
}
