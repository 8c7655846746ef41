package gmail

import (
	"encoding/base64"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

const (
	mimeTextPlain = "text/plain"
	mimeTextHTML  = "text/html"
)

// Part is a node of a message's MIME tree. Leaves carry Data, encoded in
// URL-safe base64; branches carry Parts.
type Part struct {
	MimeType string
	Data     string
	Parts    []Part
}

// Body holds the decoded body candidates of a message. An empty field means
// no candidate of that type was found.
type Body struct {
	Text string
	HTML string
}

// PartFromPayload converts the Gmail API payload into a Part tree.
func PartFromPayload(p *gmail.MessagePart) Part {
	if p == nil {
		return Part{}
	}

	part := Part{MimeType: p.MimeType}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, child := range p.Parts {
		if child == nil {
			continue
		}
		part.Parts = append(part.Parts, PartFromPayload(child))
	}
	return part
}

// DecodeBody extracts the text and HTML bodies from a MIME tree.
//
// A root that carries data is the whole body: it is HTML only when declared
// text/html, plain text otherwise. Without root data the children are walked
// depth-first and the first text/plain and first text/html parts win.
func DecodeBody(root Part) Body {
	if root.Data != "" {
		content := decodeData(root.Data)
		if root.MimeType == mimeTextHTML {
			return Body{HTML: content}
		}
		return Body{Text: content}
	}

	var body Body
	walkParts(root.Parts, &body)
	return body
}

func walkParts(parts []Part, body *Body) {
	for _, p := range parts {
		if p.Data != "" {
			switch p.MimeType {
			case mimeTextPlain:
				if body.Text == "" {
					body.Text = decodeData(p.Data)
				}
			case mimeTextHTML:
				if body.HTML == "" {
					body.HTML = decodeData(p.Data)
				}
			}
		}
		walkParts(p.Parts, body)
	}
}

// decodeData decodes Gmail body data. Padding is optional and standard
// base64 is accepted as a fallback. Malformed input yields "".
func decodeData(data string) string {
	trimmed := strings.TrimRight(data, "=")

	decoded, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(trimmed)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}
