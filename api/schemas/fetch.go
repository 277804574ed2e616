package schemas

import "fmt"

// -- Fetch Schemas --

// FetchMode is how page content was (or should be) acquired.
type FetchMode string

const (
	// FetchModeAuto tries plain HTTP first and falls back to headless
	// rendering when the response demands it.
	FetchModeAuto     FetchMode = "auto"
	FetchModeHTTP     FetchMode = "http"
	FetchModeHeadless FetchMode = "headless"
)

// FetchErrorCode is the closed set of acquisition failures. The external
// scheduler decides retry/backoff per code; the fetcher never retries.
type FetchErrorCode string

const (
	FetchErrTimeout    FetchErrorCode = "timeout"
	FetchErrDNS        FetchErrorCode = "dns"
	FetchErrConnection FetchErrorCode = "connection"
	FetchErrHTTP4xx    FetchErrorCode = "http_4xx"
	FetchErrHTTP5xx    FetchErrorCode = "http_5xx"
	FetchErrBrowser    FetchErrorCode = "browser_unavailable"
)

// FetchError is a structured acquisition failure carried inside the result.
type FetchError struct {
	Code    FetchErrorCode `json:"code"`
	Message string         `json:"message"`
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed (%s): %s", e.Code, e.Message)
}

// FetchCookie is injected into the rendering context before navigation.
type FetchCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
}

// FetchOptions is the per-call acquisition configuration.
type FetchOptions struct {
	PreferredMode FetchMode `json:"preferredMode,omitempty"`
	// FallbackToHeadless defaults to true when nil.
	FallbackToHeadless *bool `json:"fallbackToHeadless,omitempty"`

	TimeoutMS int               `json:"timeoutMs,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Cookies   []FetchCookie     `json:"cookies,omitempty"`

	// Rendering-path knobs.
	WaitSelector  string `json:"waitSelector,omitempty"`
	RenderDelayMS int    `json:"renderDelayMs,omitempty"`
	Screenshot    bool   `json:"screenshot,omitempty"`
	// BlockResources defaults to true when nil: images, fonts, and media are
	// not loaded during rendering.
	BlockResources *bool `json:"blockResources,omitempty"`
}

// HeadlessFallback reports whether the options permit a fallback to the
// rendering path.
func (o *FetchOptions) HeadlessFallback() bool {
	return o == nil || o.FallbackToHeadless == nil || *o.FallbackToHeadless
}

// BlockingEnabled reports whether non-essential resources should be blocked
// during rendering.
func (o *FetchOptions) BlockingEnabled() bool {
	return o == nil || o.BlockResources == nil || *o.BlockResources
}

// FetchResult is the outcome of one acquisition, successful or not.
type FetchResult struct {
	URL        string `json:"url"`
	FinalURL   string `json:"finalUrl,omitempty"`
	HTML       string `json:"html,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`

	ModeUsed          FetchMode `json:"modeUsed"`
	FallbackTriggered bool      `json:"fallbackTriggered"`
	FallbackReason    string    `json:"fallbackReason,omitempty"`

	Screenshot []byte `json:"screenshot,omitempty"`
	DurationMS int64  `json:"durationMs"`

	Success bool        `json:"success"`
	Error   *FetchError `json:"error,omitempty"`
}
