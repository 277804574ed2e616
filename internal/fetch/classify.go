package fetch

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Statuses that bot-protection layers answer with. Any of them is treated as
// a block regardless of body content.
var blockStatuses = map[int]struct{}{
	403: {},
	429: {},
	503: {},
}

// blockMarkers are lowercase substrings that identify challenge and denial
// pages even when they arrive with a 200.
var blockMarkers = []string{
	"cf-browser-verification",
	"cf-chl-",
	"challenge-platform",
	"recaptcha",
	"hcaptcha",
	"ddos-guard",
	"access denied",
	"unusual traffic",
	"verify you are human",
	"are you a robot",
	"pardon our interruption",
}

// spaMarkers identify client-side app shells. Matched against the lowercased
// raw document, so both quote styles are listed for mount points.
var spaMarkers = []string{
	`id="root"`, `id='root'`,
	`id="app"`, `id='app'`,
	`id="__next"`, `id='__next'`,
	`id="__nuxt"`, `id='__nuxt'`,
	`id="___gatsby"`, `id='___gatsby'`,
	"data-reactroot",
	"data-v-app",
	"ng-app",
	"ng-version",
	"window.__initial_state__",
	"window.__nuxt__",
	"__next_data__",
}

// spaTextThreshold is the collapsed visible-text length below which a page
// counts as near-empty. App shells ship navigation chrome at most; real
// product pages run far past this.
const spaTextThreshold = 160

// BlockSignature reports whether the response looks like a bot wall, CAPTCHA,
// or rate-limit page, with a human-readable reason.
func BlockSignature(statusCode int, body string) (string, bool) {
	if _, ok := blockStatuses[statusCode]; ok {
		return fmt.Sprintf("HTTP %d bot-protection status", statusCode), true
	}
	lower := strings.ToLower(body)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Sprintf("block signature %q in response body", marker), true
		}
	}
	return "", false
}

// RequiresRendering reports whether the document is a client-side app shell
// that needs a browser to produce its real content. Both conditions must
// hold: a known framework marker and a near-empty visible body.
func RequiresRendering(body string) (string, bool) {
	lower := strings.ToLower(body)
	marker := ""
	for _, m := range spaMarkers {
		if strings.Contains(lower, m) {
			marker = m
			break
		}
	}
	if marker == "" {
		return "", false
	}
	if visibleTextLength(body) >= spaTextThreshold {
		return "", false
	}
	return fmt.Sprintf("client-side app shell detected (%s)", marker), true
}

// visibleTextLength measures the text a reader would see, with script, style,
// and noscript content excluded.
func visibleTextLength(body string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return len(body)
	}
	doc.Find("script, style, noscript, template").Remove()
	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}
	return len([]rune(strings.Join(strings.Fields(text), " ")))
}
