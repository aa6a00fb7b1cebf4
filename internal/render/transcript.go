// Package render produces a self-contained HTML view of a conversation.
package render

import (
	"bytes"
	"encoding/base64"
	"html/template"
	"io"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/and161185/pairchat/internal/attachment"
	"github.com/and161185/pairchat/internal/model"
)

var (
	mdOnce sync.Once
	md     goldmark.Markdown
)

// markdown renders message text. Raw HTML in the source is omitted.
func markdown() goldmark.Markdown {
	mdOnce.Do(func() {
		md = goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		)
	})
	return md
}

type entry struct {
	Sender string
	Own    bool
	Time   string
	Body   template.HTML
	Kind   attachment.Kind
	Mime   string
	Src    template.URL
}

type page struct {
	Title   string
	Entries []entry
}

var tmpl = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:sans-serif;max-width:48rem;margin:0 auto;padding:1rem}
.msg{margin:.5rem 0;padding:.5rem .75rem;border-radius:.5rem;max-width:70%;background:#eee}
.own{margin-left:auto;background:#d7ecff;text-align:right}
.meta{font-size:.75rem;color:#666}
img,video{max-width:100%}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Entries}}<div class="msg{{if .Own}} own{{end}}">
<div class="meta">{{.Sender}} &middot; {{.Time}}</div>
{{.Body}}
{{- if .Src}}
{{if eq .Kind "image"}}<img src="{{.Src}}" alt="attachment">
{{else if eq .Kind "video"}}<video controls src="{{.Src}}"></video>
{{else if eq .Kind "audio"}}<audio controls src="{{.Src}}"></audio>
{{else}}<a download href="{{.Src}}">attachment ({{.Mime}})</a>
{{end}}{{end}}</div>
{{end}}</body>
</html>
`))

// Transcript writes tr as HTML from viewer's point of view: viewer's own
// messages are right-aligned. tr.Messages must already be visibility-filtered.
func Transcript(w io.Writer, tr model.Transcript, viewer uuid.UUID, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	p := page{Title: "Chat: " + tr.Participants[0].Username + " & " + tr.Participants[1].Username}
	for _, m := range tr.Messages {
		e := entry{
			Sender: tr.Senders[m.SenderID].Username,
			Own:    m.SenderID == viewer,
			Time:   m.CreatedAt.In(loc).Format("2006-01-02 15:04"),
		}
		if e.Sender == "" {
			e.Sender = "unknown"
		}
		if m.Content != "" {
			var buf bytes.Buffer
			if err := markdown().Convert([]byte(m.Content), &buf); err != nil {
				return err
			}
			// goldmark escapes text and drops raw HTML
			e.Body = template.HTML(buf.String())
		}
		if a := m.Attachment; a != nil && len(a.Data) > 0 {
			e.Kind = attachment.KindOf(a.MimeType)
			e.Mime = a.MimeType
			e.Src = template.URL("data:" + a.MimeType + ";base64," + base64.StdEncoding.EncodeToString(a.Data))
		}
		p.Entries = append(p.Entries, e)
	}
	return tmpl.Execute(w, p)
}
