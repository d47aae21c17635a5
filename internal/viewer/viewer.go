// Package viewer renders workspace files as standalone HTML pages for
// browser preview. Binary media is inlined as data URLs so the page
// needs no follow-up requests.
package viewer

import (
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { margin: 0; font-family: monospace; background: #1e1e1e; color: #d4d4d4; }
.path { padding: 8px 12px; background: #252526; border-bottom: 1px solid #333; }
pre { padding: 12px; margin: 0; white-space: pre-wrap; word-wrap: break-word; }
img { max-width: 100%%; display: block; margin: 0 auto; }
embed { width: 100%%; height: calc(100vh - 40px); }
</style>
</head>
<body>
<div class="path">%s</div>
%s
</body>
</html>`

// GenerateHTML reads path and returns a full HTML document previewing
// it. Images and PDFs are embedded as base64 data URLs; everything
// else renders as escaped text.
func GenerateHTML(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect type of %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	var body string
	switch {
	case strings.HasPrefix(mtype.String(), "image/"):
		body = fmt.Sprintf(`<img src="%s" alt="%s">`,
			dataURL(mtype.String(), data), html.EscapeString(path))
	case mtype.Is("application/pdf"):
		body = fmt.Sprintf(`<embed src="%s" type="application/pdf">`,
			dataURL("application/pdf", data))
	default:
		body = "<pre>" + html.EscapeString(string(data)) + "</pre>"
	}

	escaped := html.EscapeString(path)
	return fmt.Sprintf(pageTemplate, escaped, escaped, body), nil
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
