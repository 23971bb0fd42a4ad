package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	whitespaceRegex = regexp.MustCompile(`[\t\f\r \x{00A0}\x{2007}\x{202F}]+`)
	newlineRegex    = regexp.MustCompile(`\n{3,}`)
	tagRegex        = regexp.MustCompile(`(?s)<[^>]*>`)
	// Zero-width spaces and similar characters used by mail templates
	invisibleRegex = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{061C}\x{115F}\x{1160}\x{17B4}\x{17B5}\x{180E}\x{2060}-\x{2064}\x{206A}-\x{206F}\x{FE00}-\x{FE0F}\x{FFF0}-\x{FFF8}]+`)
)

// HTMLToText converts an HTML mail body to plain text.
// Markup that goquery cannot parse is stripped with a plain tag-removal pass.
func HTMLToText(html string) string {
	if html == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return cleanText(tagRegex.ReplaceAllString(html, " "))
	}

	doc.Find("script, style, head, meta, link").Remove()

	// Block elements start on a new line
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr, td").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	return cleanText(doc.Text())
}

func cleanText(text string) string {
	text = invisibleRegex.ReplaceAllString(text, "")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	cleanLines := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleanLines = append(cleanLines, line)
		}
	}
	text = strings.Join(cleanLines, "\n")

	text = newlineRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
