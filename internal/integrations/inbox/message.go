package inbox

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

type Message struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	Snippet      string `json:"snippet"`
	InternalDate string `json:"internalDate"`
	Payload      *Part  `json:"payload"`
}

type Part struct {
	PartID   string   `json:"partId"`
	MimeType string   `json:"mimeType"`
	Filename string   `json:"filename"`
	Headers  []Header `json:"headers"`
	Body     PartBody `json:"body"`
	Parts    []Part   `json:"parts"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type PartBody struct {
	Size int    `json:"size"`
	Data string `json:"data"`
}

// Header returns the first header with the given name, case-insensitively.
func (m *Message) Header(name string) string {
	if m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// InternalTime parses internalDate (epoch milliseconds).
func (m *Message) InternalTime() (time.Time, bool) {
	if m.InternalDate == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(m.InternalDate, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// Body picks the text/plain part, then text/html with tags stripped, then the raw payload body.
func (m *Message) Body() string {
	if m.Payload == nil {
		return ""
	}
	if p := findPart(m.Payload, "text/plain"); p != nil && p.Body.Data != "" {
		if s, ok := decodeBase64URL(p.Body.Data); ok {
			return s
		}
	}
	if p := findPart(m.Payload, "text/html"); p != nil && p.Body.Data != "" {
		if s, ok := decodeBase64URL(p.Body.Data); ok {
			return StripTags(s)
		}
	}
	if m.Payload.Body.Data != "" {
		if s, ok := decodeBase64URL(m.Payload.Body.Data); ok {
			return s
		}
	}
	return ""
}

func findPart(p *Part, mimeType string) *Part {
	if strings.EqualFold(p.MimeType, mimeType) {
		return p
	}
	for i := range p.Parts {
		if found := findPart(&p.Parts[i], mimeType); found != nil {
			return found
		}
	}
	return nil
}

func decodeBase64URL(s string) (string, bool) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		// некоторые отправители кладут обычный base64
		b, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return "", false
		}
	}
	return string(b), true
}

// StripTags returns the text content of an HTML document.
func StripTags(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == "script" || string(name) == "style" {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if (string(name) == "script" || string(name) == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}
