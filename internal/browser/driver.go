// File: internal/browser/driver.go

// Package browser defines the primitive driver surface the resolution engine
// consumes, and a chromedp-backed implementation of it. The engine never
// assumes anything about the page beyond this interface, which keeps the
// solvers testable against fakes.
package browser

import (
	"context"
	"time"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

// Element is a snapshot of a DOM node at query time. Selector re-addresses
// the node for follow-up actions; the snapshot itself may go stale if the
// page mutates.
type Element struct {
	Selector   string
	NodeName   string
	Attributes map[string]string
	Text       string
	Box        schemas.ElementGeometry
}

// Attr returns an attribute value, empty when absent.
func (e *Element) Attr(name string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[name]
}

// HasClass reports whether the element's class list contains name.
func (e *Element) HasClass(name string) bool {
	for _, c := range splitClasses(e.Attr("class")) {
		if c == name {
			return true
		}
	}
	return false
}

// Page is the browser-automation primitive set. Implementations must be safe
// for sequential use from a single resolution; no concurrent calls are made
// against the same Page.
type Page interface {
	// Title returns the document title.
	Title(ctx context.Context) (string, error)
	// URL returns the current top-level location.
	URL(ctx context.Context) (string, error)
	// HTML returns the serialized document for structural inspection.
	HTML(ctx context.Context) (string, error)
	// Find returns the first visible element matching selector, or an error
	// when none exists.
	Find(ctx context.Context, selector string) (*Element, error)
	// FindAll returns every element matching selector; an empty slice and
	// nil error when none match.
	FindAll(ctx context.Context, selector string) ([]*Element, error)
	// Screenshot captures the element matched by selector as an encoded
	// image. An empty selector captures the viewport.
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	// Click dispatches a raw click at viewport coordinates.
	Click(ctx context.Context, x, y float64) error
	// Type focuses selector and types text.
	Type(ctx context.Context, selector, text string) error
	// Evaluate runs a JS expression and unmarshals its result into out.
	// out may be nil when the result is irrelevant.
	Evaluate(ctx context.Context, expr string, out any) error
	// Frame resolves the embedded frame matched by selector and returns a
	// Page scoped to it.
	Frame(ctx context.Context, selector string) (Page, error)
	// WaitFor sleeps for d, honoring context cancellation.
	WaitFor(ctx context.Context, d time.Duration) error
}

// InputDispatcher is implemented by pages that can accept raw synthetic
// pointer events. The behavioral simulator requires it; solvers that only
// need Click work with any Page.
type InputDispatcher interface {
	DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error
}

func splitClasses(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}
