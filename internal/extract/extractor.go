// Package extract implements the selector extraction engine: CSS, XPath, and
// regex strategies with fallback chaining, context scoping, and attribute-mode
// extraction. Extraction never errors for absent values; a missing selector is
// an expected steady state for monitored pages.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

// ErrSelectorNotFound is the canonical failure message when the primary
// selector and every fallback yielded nothing usable.
const ErrSelectorNotFound = "Selector not found or returned empty value"

// Engine evaluates extraction configs against raw HTML.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a selector extraction engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger.Named("extract")}
}

// attempt is one (method, selector) pair in the primary-then-fallbacks chain.
type attempt struct {
	method   schemas.ExtractionMethod
	selector string
}

// Extract evaluates the config against the HTML. The primary selector is
// tried first; fallback selectors are tried strictly in declared order until
// one yields a non-empty value. A malformed selector or pattern degrades that
// attempt only, never the call.
func (e *Engine) Extract(rawHTML string, cfg *schemas.ExtractionConfig) schemas.ExtractionResult {
	if cfg == nil {
		return schemas.ExtractionResult{Success: false, Error: "extraction config is nil"}
	}

	page := &parsedPage{html: rawHTML}

	attempts := make([]attempt, 0, 1+len(cfg.FallbackSelectors))
	attempts = append(attempts, attempt{method: cfg.Method, selector: cfg.Selector})
	for _, fb := range cfg.FallbackSelectors {
		attempts = append(attempts, attempt{method: fb.Method, selector: fb.Selector})
	}

	for i, att := range attempts {
		raw, ok := e.evaluate(page, att, cfg)
		if !ok {
			continue
		}
		return schemas.ExtractionResult{
			Success:      true,
			Value:        ApplyPostprocess(raw, cfg.Postprocess),
			SelectorUsed: att.selector,
			FallbackUsed: i > 0,
		}
	}

	return schemas.ExtractionResult{Success: false, Error: ErrSelectorNotFound}
}

// evaluate runs a single attempt. ok is false when the selector matched
// nothing, produced only whitespace, or failed to compile.
func (e *Engine) evaluate(page *parsedPage, att attempt, cfg *schemas.ExtractionConfig) (string, bool) {
	var value string
	switch att.method {
	case schemas.MethodRegex:
		// Regex runs against the raw HTML source and ignores attribute and
		// context entirely.
		value = e.evaluateRegex(page.html, att.selector)
	case schemas.MethodXPath:
		value = e.evaluateXPath(page, att.selector, cfg)
	case schemas.MethodCSS:
		value = e.evaluateCSS(page, att.selector, cfg)
	default:
		e.logger.Debug("Unknown extraction method.", zap.String("method", string(att.method)))
		return "", false
	}

	if strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

func (e *Engine) evaluateRegex(rawHTML, pattern string) string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		e.logger.Debug("Invalid regex selector.", zap.String("pattern", pattern), zap.Error(err))
		return ""
	}
	sm := re.FindStringSubmatch(rawHTML)
	if sm == nil {
		return ""
	}
	// First capture group if the pattern has one, else the full match.
	if len(sm) > 1 {
		return sm[1]
	}
	return sm[0]
}

func (e *Engine) evaluateCSS(page *parsedPage, selector string, cfg *schemas.ExtractionConfig) string {
	doc, err := page.doc()
	if err != nil {
		e.logger.Debug("HTML parse failed.", zap.Error(err))
		return ""
	}

	base := doc.Selection
	if cfg.Context != "" {
		ctxMatcher, err := cascadia.Compile(cfg.Context)
		if err != nil {
			e.logger.Debug("Invalid CSS context selector.", zap.String("context", cfg.Context), zap.Error(err))
			return ""
		}
		scope := doc.FindMatcher(ctxMatcher)
		// The scope must resolve to exactly one element or the attempt fails.
		if scope.Length() != 1 {
			return ""
		}
		base = scope
	}

	m, err := cascadia.Compile(selector)
	if err != nil {
		e.logger.Debug("Invalid CSS selector.", zap.String("selector", selector), zap.Error(err))
		return ""
	}
	sel := base.FindMatcher(m).First()
	if sel.Length() == 0 {
		return ""
	}
	return cssAttribute(sel, cfg.Attribute)
}

func (e *Engine) evaluateXPath(page *parsedPage, selector string, cfg *schemas.ExtractionConfig) string {
	root, err := page.root()
	if err != nil {
		e.logger.Debug("HTML parse failed.", zap.Error(err))
		return ""
	}

	scope := root
	if cfg.Context != "" {
		ctxExpr, err := xpath.Compile(cfg.Context)
		if err != nil {
			e.logger.Debug("Invalid XPath context expression.", zap.String("context", cfg.Context), zap.Error(err))
			return ""
		}
		nodes := htmlquery.QuerySelectorAll(root, ctxExpr)
		if len(nodes) != 1 {
			return ""
		}
		scope = nodes[0]
	}

	expr, err := xpath.Compile(selector)
	if err != nil {
		e.logger.Debug("Invalid XPath expression.", zap.String("selector", selector), zap.Error(err))
		return ""
	}
	node := htmlquery.QuerySelector(scope, expr)
	if node == nil {
		return ""
	}
	return xpathAttribute(node, cfg.Attribute)
}

// cssAttribute converts a matched selection into its extracted string value.
// Unknown attribute modes intentionally produce no value.
func cssAttribute(sel *goquery.Selection, attribute string) string {
	switch {
	case attribute == "" || attribute == schemas.AttributeText:
		return strings.TrimSpace(sel.Text())

	case attribute == schemas.AttributeHTML:
		inner, err := sel.Html()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(inner)

	case attribute == schemas.AttributeValue:
		if v, ok := sel.Attr("value"); ok {
			return strings.TrimSpace(v)
		}
		if sel.Is("textarea") {
			return strings.TrimSpace(sel.Text())
		}
		return ""

	case strings.HasPrefix(attribute, schemas.AttrPrefix):
		name := strings.TrimPrefix(attribute, schemas.AttrPrefix)
		if v, ok := sel.Attr(name); ok {
			return strings.TrimSpace(v)
		}
		return ""

	default:
		return ""
	}
}

// xpathAttribute mirrors cssAttribute for XPath-matched nodes.
func xpathAttribute(node *html.Node, attribute string) string {
	switch {
	case attribute == "" || attribute == schemas.AttributeText:
		return strings.TrimSpace(htmlquery.InnerText(node))

	case attribute == schemas.AttributeHTML:
		return strings.TrimSpace(htmlquery.OutputHTML(node, false))

	case attribute == schemas.AttributeValue:
		if v := htmlquery.SelectAttr(node, "value"); v != "" {
			return strings.TrimSpace(v)
		}
		if node.Type == html.ElementNode && strings.EqualFold(node.Data, "textarea") {
			return strings.TrimSpace(htmlquery.InnerText(node))
		}
		return ""

	case strings.HasPrefix(attribute, schemas.AttrPrefix):
		name := strings.TrimPrefix(attribute, schemas.AttrPrefix)
		return strings.TrimSpace(htmlquery.SelectAttr(node, name))

	default:
		return ""
	}
}

// parsedPage lazily parses the document once per tree flavor. Extraction is
// single-threaded per invocation, so no locking is needed.
type parsedPage struct {
	html string

	gqDone bool
	gq     *goquery.Document
	gqErr  error

	xpDone bool
	xp     *html.Node
	xpErr  error
}

func (p *parsedPage) doc() (*goquery.Document, error) {
	if !p.gqDone {
		p.gqDone = true
		p.gq, p.gqErr = goquery.NewDocumentFromReader(strings.NewReader(p.html))
	}
	return p.gq, p.gqErr
}

func (p *parsedPage) root() (*html.Node, error) {
	if !p.xpDone {
		p.xpDone = true
		p.xp, p.xpErr = htmlquery.Parse(strings.NewReader(p.html))
	}
	return p.xp, p.xpErr
}
