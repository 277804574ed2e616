package extract_test

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/fabianmarian8/pagewatch/api/schemas"
	"github.com/fabianmarian8/pagewatch/internal/extract"
)

const productPage = `<!DOCTYPE html>
<html>
<head><title>Widget Shop</title></head>
<body>
  <div id="main">
    <div class="product" data-sku="W-100">
      <h1 class="name">Deluxe Widget</h1>
      <span class="price" content="19.99">$19.99</span>
      <input type="hidden" name="sku" value="W-100">
      <textarea class="notes">  ships in 3 days  </textarea>
    </div>
    <div class="related">
      <span class="price">$5.00</span>
    </div>
    <div class="blank"><span class="price">   </span></div>
  </div>
</body>
</html>`

func newTestEngine(t *testing.T) *extract.Engine {
	t.Helper()
	return extract.NewEngine(zaptest.NewLogger(t))
}

func TestEngine_Extract_CSS(t *testing.T) {
	testCases := []struct {
		name     string
		cfg      schemas.ExtractionConfig
		expected string
	}{
		{
			name: "Default attribute yields trimmed text",
			cfg: schemas.ExtractionConfig{
				Method:   schemas.MethodCSS,
				Selector: "h1.name",
			},
			expected: "Deluxe Widget",
		},
		{
			name: "First match wins when multiple elements match",
			cfg: schemas.ExtractionConfig{
				Method:   schemas.MethodCSS,
				Selector: ".price",
			},
			expected: "$19.99",
		},
		{
			name: "Named attribute mode reads the attribute value",
			cfg: schemas.ExtractionConfig{
				Method:    schemas.MethodCSS,
				Selector:  "span.price",
				Attribute: "attr:content",
			},
			expected: "19.99",
		},
		{
			name: "HTML mode returns inner markup",
			cfg: schemas.ExtractionConfig{
				Method:    schemas.MethodCSS,
				Selector:  ".related",
				Attribute: schemas.AttributeHTML,
			},
			expected: `<span class="price">$5.00</span>`,
		},
		{
			name: "Value mode reads the value attribute of form controls",
			cfg: schemas.ExtractionConfig{
				Method:    schemas.MethodCSS,
				Selector:  `input[name="sku"]`,
				Attribute: schemas.AttributeValue,
			},
			expected: "W-100",
		},
		{
			name: "Value mode falls back to text content for textareas",
			cfg: schemas.ExtractionConfig{
				Method:    schemas.MethodCSS,
				Selector:  "textarea.notes",
				Attribute: schemas.AttributeValue,
			},
			expected: "ships in 3 days",
		},
		{
			name: "Comma selector groups match in document order",
			cfg: schemas.ExtractionConfig{
				Method:   schemas.MethodCSS,
				Selector: ".missing, .related .price",
			},
			expected: "$5.00",
		},
	}

	engine := newTestEngine(t)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := engine.Extract(productPage, &tc.cfg)
			require.True(t, res.Success, "expected extraction to succeed: %s", res.Error)
			assert.Equal(t, tc.expected, res.Value)
			assert.Equal(t, tc.cfg.Selector, res.SelectorUsed)
			assert.False(t, res.FallbackUsed)
			assert.Empty(t, res.Error)
		})
	}
}

func TestEngine_Extract_XPath(t *testing.T) {
	testCases := []struct {
		name     string
		cfg      schemas.ExtractionConfig
		expected string
	}{
		{
			name: "Text content of the first matching node",
			cfg: schemas.ExtractionConfig{
				Method:   schemas.MethodXPath,
				Selector: `//h1[@class="name"]`,
			},
			expected: "Deluxe Widget",
		},
		{
			name: "Named attribute mode",
			cfg: schemas.ExtractionConfig{
				Method:    schemas.MethodXPath,
				Selector:  `//span[@class="price"]`,
				Attribute: "attr:content",
			},
			expected: "19.99",
		},
		{
			name: "Value mode on an input element",
			cfg: schemas.ExtractionConfig{
				Method:    schemas.MethodXPath,
				Selector:  `//input[@name="sku"]`,
				Attribute: schemas.AttributeValue,
			},
			expected: "W-100",
		},
		{
			name: "Relative expression scoped under a context node",
			cfg: schemas.ExtractionConfig{
				Method:   schemas.MethodXPath,
				Selector: `.//span[@class="price"]`,
				Context:  `//div[@class="related"]`,
			},
			expected: "$5.00",
		},
	}

	engine := newTestEngine(t)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := engine.Extract(productPage, &tc.cfg)
			require.True(t, res.Success, "expected extraction to succeed: %s", res.Error)
			assert.Equal(t, tc.expected, res.Value)
		})
	}
}

func TestEngine_Extract_Regex(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("First capture group is preferred", func(t *testing.T) {
		res := engine.Extract(productPage, &schemas.ExtractionConfig{
			Method:   schemas.MethodRegex,
			Selector: `data-sku="([A-Z]-\d+)"`,
		})
		require.True(t, res.Success)
		assert.Equal(t, "W-100", res.Value)
	})

	t.Run("Full match when the pattern has no groups", func(t *testing.T) {
		res := engine.Extract(productPage, &schemas.ExtractionConfig{
			Method:   schemas.MethodRegex,
			Selector: `\$\d+\.\d{2}`,
		})
		require.True(t, res.Success)
		assert.Equal(t, "$19.99", res.Value)
	})

	t.Run("Attribute and context are ignored for regex", func(t *testing.T) {
		res := engine.Extract(productPage, &schemas.ExtractionConfig{
			Method:    schemas.MethodRegex,
			Selector:  `\$5\.\d{2}`,
			Attribute: schemas.AttributeHTML,
			Context:   ".nonexistent",
		})
		require.True(t, res.Success)
		assert.Equal(t, "$5.00", res.Value)
	})
}

func TestEngine_Extract_FallbackChain(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("Fallbacks are tried in declared order until one matches", func(t *testing.T) {
		res := engine.Extract(productPage, &schemas.ExtractionConfig{
			Method:   schemas.MethodCSS,
			Selector: ".does-not-exist",
			FallbackSelectors: []schemas.FallbackSelector{
				{Method: schemas.MethodCSS, Selector: ".also-missing"},
				{Method: schemas.MethodXPath, Selector: `//span[@class="price"]`},
				{Method: schemas.MethodCSS, Selector: "h1.name"},
			},
		})
		require.True(t, res.Success)
		assert.Equal(t, "$19.99", res.Value)
		assert.Equal(t, `//span[@class="price"]`, res.SelectorUsed)
		assert.True(t, res.FallbackUsed)
	})

	t.Run("Primary success never consults fallbacks", func(t *testing.T) {
		res := engine.Extract(productPage, &schemas.ExtractionConfig{
			Method:   schemas.MethodCSS,
			Selector: "h1.name",
			FallbackSelectors: []schemas.FallbackSelector{
				{Method: schemas.MethodCSS, Selector: ".price"},
			},
		})
		require.True(t, res.Success)
		assert.Equal(t, "Deluxe Widget", res.Value)
		assert.Equal(t, "h1.name", res.SelectorUsed)
		assert.False(t, res.FallbackUsed)
	})

	t.Run("Whitespace-only primary value triggers the fallback", func(t *testing.T) {
		res := engine.Extract(productPage, &schemas.ExtractionConfig{
			Method:   schemas.MethodCSS,
			Selector: ".blank .price",
			FallbackSelectors: []schemas.FallbackSelector{
				{Method: schemas.MethodCSS, Selector: ".related .price"},
			},
		})
		require.True(t, res.Success)
		assert.Equal(t, "$5.00", res.Value)
		assert.True(t, res.FallbackUsed)
	})

	t.Run("Invalid selectors degrade the attempt and move on", func(t *testing.T) {
		res := engine.Extract(productPage, &schemas.ExtractionConfig{
			Method:   schemas.MethodCSS,
			Selector: "div[[[",
			FallbackSelectors: []schemas.FallbackSelector{
				{Method: schemas.MethodRegex, Selector: `([`},
				{Method: schemas.MethodXPath, Selector: `//a[`},
				{Method: schemas.MethodCSS, Selector: "h1.name"},
			},
		})
		require.True(t, res.Success)
		assert.Equal(t, "Deluxe Widget", res.Value)
		assert.True(t, res.FallbackUsed)
	})
}

func TestEngine_Extract_ContextScoping(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("Context narrows the search scope", func(t *testing.T) {
		res := engine.Extract(productPage, &schemas.ExtractionConfig{
			Method:   schemas.MethodCSS,
			Selector: ".price",
			Context:  ".related",
		})
		require.True(t, res.Success)
		assert.Equal(t, "$5.00", res.Value)
	})

	t.Run("Ambiguous context fails the attempt", func(t *testing.T) {
		// "div" matches several elements, so the scope is not unique.
		res := engine.Extract(productPage, &schemas.ExtractionConfig{
			Method:   schemas.MethodCSS,
			Selector: ".price",
			Context:  "div",
		})
		require.False(t, res.Success)
		assert.Equal(t, extract.ErrSelectorNotFound, res.Error)
	})

	t.Run("Missing context fails the attempt but fallbacks still run", func(t *testing.T) {
		res := engine.Extract(productPage, &schemas.ExtractionConfig{
			Method:   schemas.MethodCSS,
			Selector: ".price",
			Context:  ".nonexistent",
			FallbackSelectors: []schemas.FallbackSelector{
				{Method: schemas.MethodRegex, Selector: `\$(5\.\d{2})`},
			},
		})
		require.True(t, res.Success)
		// The regex fallback surfaces its first capture group, not the full match.
		assert.Equal(t, "5.00", res.Value)
		assert.True(t, res.FallbackUsed)
	})
}

func TestEngine_Extract_Failures(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("Nothing matches anywhere", func(t *testing.T) {
		res := engine.Extract(productPage, &schemas.ExtractionConfig{
			Method:   schemas.MethodCSS,
			Selector: ".ghost",
			FallbackSelectors: []schemas.FallbackSelector{
				{Method: schemas.MethodXPath, Selector: `//div[@id="ghost"]`},
				{Method: schemas.MethodRegex, Selector: `GHOST-\d+`},
			},
		})
		require.False(t, res.Success)
		assert.Equal(t, extract.ErrSelectorNotFound, res.Error)
		assert.Empty(t, res.Value)
		assert.False(t, res.FallbackUsed)
	})

	t.Run("Empty document", func(t *testing.T) {
		res := engine.Extract("", &schemas.ExtractionConfig{
			Method:   schemas.MethodCSS,
			Selector: "h1",
		})
		require.False(t, res.Success)
		assert.Equal(t, extract.ErrSelectorNotFound, res.Error)
	})

	t.Run("Nil config", func(t *testing.T) {
		res := engine.Extract(productPage, nil)
		require.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
	})

	t.Run("Unknown method", func(t *testing.T) {
		res := engine.Extract(productPage, &schemas.ExtractionConfig{
			Method:   schemas.ExtractionMethod("jsonpath"),
			Selector: "$.price",
		})
		require.False(t, res.Success)
		assert.Equal(t, extract.ErrSelectorNotFound, res.Error)
	})
}

func TestEngine_Extract_PostprocessApplied(t *testing.T) {
	engine := newTestEngine(t)

	res := engine.Extract(productPage, &schemas.ExtractionConfig{
		Method:   schemas.MethodCSS,
		Selector: "span.price",
		Postprocess: []schemas.PostprocessOp{
			{Op: schemas.OpRegexExtract, Pattern: `([\d.]+)`, Group: 1},
		},
	})
	require.True(t, res.Success)
	assert.Equal(t, "19.99", res.Value)
}

// FuzzEngine_Extract throws arbitrary documents and selectors at every
// extraction method. The engine must never panic; malformed inputs surface as
// a failed result at worst.
func FuzzEngine_Extract(f *testing.F) {
	f.Add(productPage, "h1.name", "", "")
	f.Add(productPage, `//span[@class="price"]`, "attr:content", `//div`)
	f.Add("<p>hi</p>", `\d+`, "", "")
	f.Add("", "div[[[", "html", ".x")

	f.Fuzz(func(t *testing.T, rawHTML, selector, attribute, context string) {
		engine := extract.NewEngine(zap.NewNop())

		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Caught a panic during extraction fuzzing: %v", r)
			}
		}()

		for _, method := range []schemas.ExtractionMethod{
			schemas.MethodCSS, schemas.MethodXPath, schemas.MethodRegex,
		} {
			_ = engine.Extract(rawHTML, &schemas.ExtractionConfig{
				Method:    method,
				Selector:  selector,
				Attribute: attribute,
				Context:   context,
			})
		}
	})
}

// FuzzEngine_Extract_Structured fuzzes the whole config structure.
func FuzzEngine_Extract_Structured(f *testing.F) {
	f.Fuzz(func(t *testing.T, rawHTML string, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		cfg := &schemas.ExtractionConfig{}
		if err := fuzzConsumer.GenerateStruct(cfg); err != nil {
			return // Ignore inputs that cannot be mapped to the struct.
		}

		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Caught a panic during structured extraction fuzzing: %v", r)
			}
		}()

		engine := extract.NewEngine(zap.NewNop())
		_ = engine.Extract(rawHTML, cfg)
	})
}
