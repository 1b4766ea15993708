// File: internal/solver/mocks_test.go
package solver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/browser"
	"github.com/xkilldash9x/gatecrash/internal/recognition"
)

// fakePage is a scriptable browser.Page. Selectors resolve through the
// elements map; frames through the frames map. WaitFor returns immediately
// so tests never sleep.
type fakePage struct {
	mu          sync.Mutex
	title       string
	url         string
	html        string
	elements    map[string][]*browser.Element
	frames      map[string]*fakePage
	screenshots map[string][]byte
	typed       []typedEntry
	evalErr     error
}

type typedEntry struct {
	selector string
	text     string
}

func newFakePage() *fakePage {
	return &fakePage{
		elements:    make(map[string][]*browser.Element),
		frames:      make(map[string]*fakePage),
		screenshots: make(map[string][]byte),
		evalErr:     errors.New("evaluate not scripted"),
	}
}

func (p *fakePage) addElement(selector string, el *browser.Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el.Selector == "" {
		el.Selector = selector
	}
	p.elements[selector] = append(p.elements[selector], el)
}

func (p *fakePage) removeElements(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, selector)
}

func (p *fakePage) Title(ctx context.Context) (string, error) { return p.title, nil }
func (p *fakePage) URL(ctx context.Context) (string, error)   { return p.url, nil }
func (p *fakePage) HTML(ctx context.Context) (string, error)  { return p.html, nil }

func (p *fakePage) Find(ctx context.Context, selector string) (*browser.Element, error) {
	els, err := p.FindAll(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	return els[0], nil
}

func (p *fakePage) FindAll(ctx context.Context, selector string) ([]*browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*browser.Element(nil), p.elements[selector]...), nil
}

func (p *fakePage) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if img, ok := p.screenshots[selector]; ok {
		return img, nil
	}
	return []byte(selector), nil
}

func (p *fakePage) Click(ctx context.Context, x, y float64) error { return nil }

func (p *fakePage) Type(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed = append(p.typed, typedEntry{selector: selector, text: text})
	return nil
}

func (p *fakePage) typedInto(selector string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, t := range p.typed {
		if t.selector == selector {
			out = append(out, t.text)
		}
	}
	return out
}

func (p *fakePage) Evaluate(ctx context.Context, expr string, out any) error { return p.evalErr }

func (p *fakePage) Frame(ctx context.Context, selector string) (browser.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.frames[selector]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("frame %q not found", selector)
}

func (p *fakePage) WaitFor(ctx context.Context, d time.Duration) error { return ctx.Err() }

// fakeHuman records movement calls and succeeds instantly.
type fakeHuman struct {
	mu      sync.Mutex
	clicks  []schemas.ElementGeometry
	actions []string
}

func (h *fakeHuman) record(action string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = append(h.actions, action)
}

func (h *fakeHuman) SeedPosition(ctx context.Context, w, hgt float64) error { return ctx.Err() }
func (h *fakeHuman) MoveTo(ctx context.Context, x, y float64) error         { return ctx.Err() }
func (h *fakeHuman) Click(ctx context.Context, x, y float64) error          { return ctx.Err() }

func (h *fakeHuman) ClickInBox(ctx context.Context, box schemas.ElementGeometry, fx, fy float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clicks = append(h.clicks, box)
	h.actions = append(h.actions, "click")
	return nil
}

func (h *fakeHuman) CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	return ctx.Err()
}
func (h *fakeHuman) Wander(ctx context.Context, w, hgt float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.record("wander")
	return nil
}
func (h *fakeHuman) ScrollBy(ctx context.Context, deltaY float64) error {
	return ctx.Err()
}

func (h *fakeHuman) clickedBoxes() []schemas.ElementGeometry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]schemas.ElementGeometry(nil), h.clicks...)
}

func (h *fakeHuman) actionLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.actions...)
}

// fakeGateway scripts the three perception calls.
type fakeGateway struct {
	classifyFn   func(image []byte, category string) (schemas.RecognitionResult, error)
	transcribeFn func(audioPath string) (string, error)
	recognizeFn  func(imagePath string, profile recognition.OCRProfile) (string, error)
}

func (g *fakeGateway) Classify(ctx context.Context, image []byte, category string) (schemas.RecognitionResult, error) {
	if g.classifyFn == nil {
		return schemas.RecognitionResult{}, errors.New("classify not scripted")
	}
	return g.classifyFn(image, category)
}

func (g *fakeGateway) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if g.transcribeFn == nil {
		return "", errors.New("transcribe not scripted")
	}
	return g.transcribeFn(audioPath)
}

func (g *fakeGateway) Recognize(ctx context.Context, imagePath string, profile recognition.OCRProfile) (string, error) {
	if g.recognizeFn == nil {
		return "", errors.New("recognize not scripted")
	}
	return g.recognizeFn(imagePath, profile)
}

// fakeChecker pops scripted detection answers; the last entry repeats.
type fakeChecker struct {
	mu      sync.Mutex
	answers [][]schemas.ChallengeDetection
	calls   int
}

func (c *fakeChecker) Detect(ctx context.Context, page browser.Page) ([]schemas.ChallengeDetection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.answers) == 0 {
		return nil, nil
	}
	head := c.answers[0]
	if len(c.answers) > 1 {
		c.answers = c.answers[1:]
	}
	return head, nil
}

// stubSolver returns a canned outcome, optionally panicking or blocking
// until its context dies.
type stubSolver struct {
	name        string
	stats       Stats
	err         error
	panicMsg    string
	blockOnCtx  bool
	invocations int
	mu          sync.Mutex
}

func (s *stubSolver) Name() string { return s.name }

func (s *stubSolver) Solve(ctx context.Context, env *Env, det schemas.ChallengeDetection) (Stats, error) {
	s.mu.Lock()
	s.invocations++
	s.mu.Unlock()
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.blockOnCtx {
		<-ctx.Done()
		return s.stats, ctx.Err()
	}
	return s.stats, s.err
}

func (s *stubSolver) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invocations
}
