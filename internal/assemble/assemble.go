// Package assemble merges a render snapshot into the application's
// index.html.
package assemble

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"golang.org/x/net/html"

	"github.com/cryguy/fastboot/internal/core"
)

// Placeholder comments emitted by the application build.
const (
	TitlePlaceholder = "EMBER_CLI_FASTBOOT_TITLE"
	HeadPlaceholder  = "EMBER_CLI_FASTBOOT_HEAD"
	BodyPlaceholder  = "EMBER_CLI_FASTBOOT_BODY"
)

// Boundary scripts wrapped around the rendered body so the client can
// find and replace the server-rendered markup.
const (
	BodyStart = `<script type="x/boundary" id="fastboot-body-start"></script>`
	BodyEnd   = `<script type="x/boundary" id="fastboot-body-end"></script>`
)

// Page rewrites index so that it carries the captured document:
//
//   - attributes of html, head and body are merged into the first start
//     tag of each, captured values winning;
//   - the title placeholder is removed;
//   - the head placeholder is replaced with the head content, or the
//     content is inserted before </head> when there is no placeholder;
//   - the body placeholder is replaced with the body content between the
//     boundary scripts, or the same is inserted after <body>.
//
// Everything else is copied byte for byte.
func Page(index []byte, snap core.Snapshot) ([]byte, error) {
	hasHead := bytes.Contains(index, []byte(HeadPlaceholder))
	hasBody := bytes.Contains(index, []byte(BodyPlaceholder))
	body := BodyStart + snap.BodyContent + BodyEnd

	attrs := map[string]map[string]string{
		"html": snap.HTMLAttributes,
		"head": snap.HeadAttributes,
		"body": snap.BodyAttributes,
	}
	seen := map[string]bool{}

	var out bytes.Buffer
	out.Grow(len(index) + len(snap.HeadContent) + len(body))
	z := html.NewTokenizer(bytes.NewReader(index))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("parsing index: %w", err)
			}
			return out.Bytes(), nil
		}
		raw := append([]byte(nil), z.Raw()...)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			extra, ok := attrs[tok.Data]
			if !ok || seen[tok.Data] {
				out.Write(raw)
				continue
			}
			seen[tok.Data] = true
			writeStartTag(&out, tok, extra)
			if tok.Data == "body" && !hasBody {
				out.WriteString(body)
			}
		case html.EndTagToken:
			tok := z.Token()
			if tok.Data == "head" && !hasHead {
				out.WriteString(snap.HeadContent)
			}
			out.Write(raw)
		case html.CommentToken:
			switch strings.TrimSpace(z.Token().Data) {
			case TitlePlaceholder:
			case HeadPlaceholder:
				out.WriteString(snap.HeadContent)
			case BodyPlaceholder:
				out.WriteString(body)
			default:
				out.Write(raw)
			}
		default:
			out.Write(raw)
		}
	}
}

func writeStartTag(out *bytes.Buffer, tok html.Token, extra map[string]string) {
	pending := maps.Clone(extra)
	if pending == nil {
		pending = map[string]string{}
	}
	out.WriteByte('<')
	out.WriteString(tok.Data)
	for _, a := range tok.Attr {
		name := a.Key
		if a.Namespace != "" {
			name = a.Namespace + ":" + a.Key
		}
		val := a.Val
		if v, ok := pending[name]; ok {
			val = v
			delete(pending, name)
		}
		out.WriteString(core.AttributesString(map[string]string{name: val}))
	}
	out.WriteString(core.AttributesString(pending))
	if tok.Type == html.SelfClosingTagToken {
		out.WriteString(" /")
	}
	out.WriteByte('>')
}
