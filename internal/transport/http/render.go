package httptransport

import (
	"embed"
	"html/template"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	"golang.org/x/net/html"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// 邮件正文中需要整体移除的元素
const strippedElements = "script, style, iframe, frame, frameset, object, embed, applet, form, input, button, textarea, select, link, meta, base"

// SVG 动画元素可以在运行时改写其他属性，整体移除
var strippedSVGElements = map[string]bool{
	"animate":          true,
	"animatemotion":    true,
	"animatetransform": true,
	"set":              true,
}

// 可携带 URL 的属性，值为 javascript: 时移除。values、to、from 是 SVG 动画的目标值
var urlAttributes = []string{"href", "src", "action", "formaction", "xlink:href", "background", "values", "to", "from"}

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"relTime":  relTime,
		"fullTime": fullTime,
		"safeBody": sanitizeHTML,
	}).ParseFS(templateFS, "templates/*.html")
}

// relTime 相对时间，如 "59 minutes from now"、"3 minutes ago"
func relTime(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

func fullTime(t time.Time) string {
	return t.Local().Format("Jan 2, 2006, 3:04:05 PM")
}

// sanitizeHTML 清理邮件 HTML 正文，只保留 body 内容
//
// 移除脚本类元素、表单元素、on* 事件属性以及 javascript: 链接。
func sanitizeHTML(raw string) template.HTML {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return template.HTML(template.HTMLEscapeString(raw))
	}

	doc.Find(strippedElements).Remove()

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if strippedSVGElements[strings.ToLower(node.Data)] {
			s.Remove()
			return
		}
		kept := make([]html.Attribute, 0, len(node.Attr))
		for _, attr := range node.Attr {
			key := strings.ToLower(attr.Key)
			if strings.HasPrefix(key, "on") {
				continue
			}
			if isURLAttribute(key) && isScriptURL(attr.Val) {
				continue
			}
			kept = append(kept, attr)
		}
		node.Attr = kept
	})

	// 链接在新窗口打开
	doc.Find("a[href]").SetAttr("target", "_blank").SetAttr("rel", "noopener noreferrer")

	body, err := doc.Find("body").Html()
	if err != nil {
		return ""
	}
	return template.HTML(body)
}

func isURLAttribute(key string) bool {
	for _, name := range urlAttributes {
		if key == name {
			return true
		}
	}
	return false
}

// isScriptURL 判断属性值是否含脚本 URL，SVG 的 values 以分号分隔多个值
func isScriptURL(value string) bool {
	for _, part := range strings.Split(value, ";") {
		if hasScriptScheme(part) {
			return true
		}
	}
	return false
}

func hasScriptScheme(value string) bool {
	v := strings.Map(func(r rune) rune {
		// 浏览器会忽略 URL 中的空白和控制字符
		if r <= ' ' {
			return -1
		}
		return r
	}, value)
	v = strings.ToLower(v)
	return strings.HasPrefix(v, "javascript:") || strings.HasPrefix(v, "vbscript:") || strings.HasPrefix(v, "data:text/html")
}
