package endpoints

import (
	"bytes"
	"html"
	"net/http"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

const pageHeader = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width">
    <title>opsagent</title>
  </head>
  <body>
`

const pageFooter = `  </body>
</html>
`

// renderMarkdown converts an agent answer to an HTML fragment. Raw HTML in
// the answer is not passed through.
func renderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func respondWithHTML(w http.ResponseWriter, answer string) {
	body, err := renderMarkdown(answer)
	if err != nil {
		body = "<pre>" + html.EscapeString(answer) + "</pre>\n"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(pageHeader + body + pageFooter))
}
