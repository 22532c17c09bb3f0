package view

import (
	"bytes"
	"html/template"
)

// LandingPageData provides the dynamic fields required by the landing template.
type LandingPageData struct {
	Title     string
	TagID     string
	TargetURL string
	Campaign  string
}

var landingPageTmpl = template.Must(template.New("landing_page").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<title>{{if .Title}}{{.Title}}{{else}}touchlog{{end}}</title>
	<style>
		:root {
			--bg: #0b0c10;
			--card: rgba(255, 255, 255, 0.05);
			--border: rgba(255, 255, 255, 0.14);
			--text: #e9edf5;
			--muted: #9aa4bb;
			--accent: #6ee7b7;
			font-family: "Inter", -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
		}
		* { box-sizing: border-box; }
		body {
			margin: 0;
			min-height: 100vh;
			display: flex;
			align-items: center;
			justify-content: center;
			background: radial-gradient(circle at 25% 15%, #101826, #05070c 65%);
			color: var(--text);
		}
		.card {
			background: var(--card);
			border: 1px solid var(--border);
			border-radius: 16px;
			padding: 32px;
			width: min(480px, 92vw);
		}
		h1 { font-size: 1.4rem; margin-bottom: 8px; }
		p { color: var(--muted); margin-top: 0; }
		a.button {
			display: inline-flex;
			align-items: center;
			justify-content: center;
			margin-top: 20px;
			padding: 0 26px;
			height: 46px;
			border-radius: 999px;
			background: var(--accent);
			color: #04110b;
			font-weight: 600;
			text-decoration: none;
		}
		.meta {
			margin-top: 18px;
			font-size: 0.82rem;
			color: rgba(233, 237, 245, 0.55);
		}
	</style>
</head>
<body>
	<div class="card">
		<h1>{{if .Title}}{{.Title}}{{else}}You found a tag{{end}}</h1>
		{{if .Campaign}}<p>Part of the <strong>{{.Campaign}}</strong> campaign.</p>{{end}}
		<p>Tap below to continue to the destination.</p>
		<a class="button" href="{{.TargetURL}}" rel="noopener">Continue</a>
		<div class="meta">Tag {{.TagID}}</div>
	</div>
</body>
</html>
`))

// RenderLandingPage renders the direct-access landing page for one tag.
func RenderLandingPage(data LandingPageData) (string, error) {
	var buf bytes.Buffer
	if err := landingPageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
