package httptransport

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeHTML(t *testing.T) {
	raw := `<html><head><style>body{}</style></head><body>
<p onclick="steal()">Hi</p>
<img src="https://example.com/a.png" onerror="x()">
<a href=" java&#x09;script:alert(1)">bad</a>
<a href="https://example.com">good</a>
<iframe src="https://example.com"></iframe>
<form action="/x"><input name="q"></form>
</body></html>`

	out := string(sanitizeHTML(raw))

	assert.Contains(t, out, "<p>Hi</p>")
	assert.Contains(t, out, `src="https://example.com/a.png"`)
	assert.NotContains(t, out, "onerror")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "script:")
	assert.NotContains(t, out, "<iframe")
	assert.NotContains(t, out, "<form")
	assert.NotContains(t, out, "<input")
	assert.NotContains(t, out, "<style")
	assert.Contains(t, out, `href="https://example.com"`)
	assert.Contains(t, out, `target="_blank"`)
}

func TestSanitizeHTML_SVGAnimation(t *testing.T) {
	raw := `<body><svg><a><animate attributeName="href" values="javascript:alert(1)"></animate>` +
		`<set attributeName="href" to="javascript:alert(2)"></set>` +
		`<animateMotion dur="1s"></animateMotion><text>click</text></a></svg>` +
		`<p data-x="1" to="0;JavaScript:alert(3)">ok</p></body>`

	out := string(sanitizeHTML(raw))

	assert.NotContains(t, strings.ToLower(out), "javascript:")
	assert.NotContains(t, out, "<animate")
	assert.NotContains(t, out, "<set")
	assert.NotContains(t, strings.ToLower(out), "animatemotion")
	assert.Contains(t, out, "click")
	assert.Contains(t, out, `data-x="1"`)
}

func TestRelTime(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "59 minutes from now", relTime(now.Add(59*time.Minute), now))
	assert.Equal(t, "3 minutes ago", relTime(now.Add(-3*time.Minute), now))
}
