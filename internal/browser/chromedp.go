// File: internal/browser/chromedp.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/config"
)

// Manager owns the browser process and hands out isolated tabs.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	mu   sync.Mutex
	tabs map[string]context.CancelFunc
}

// NewManager starts the allocator that backs all tabs.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
		tabs:   make(map[string]context.CancelFunc),
	}

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, m.allocatorOptions()...)
	m.logger.Info("Browser manager initialized", zap.Bool("headless", cfg.Headless))
	return m, nil
}

// allocatorOptions configures the flags for the browser executable.
func (m *Manager) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	if m.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}

	opts = append(opts,
		// Automation detection evasion basics. Anything deeper belongs to an
		// external stealth layer, not this driver.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),

		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", m.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", m.cfg.IgnoreTLSErrors),
	)

	if m.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.cfg.UserAgent))
	}
	for _, arg := range m.cfg.Args {
		if name, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "="); found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// NewPage opens a fresh tab and navigates it to url.
func (m *Manager) NewPage(ctx context.Context, url string) (*ChromePage, error) {
	tabCtx, cancel := chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Errorf),
	)

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-tabCtx.Done():
		}
	}()

	if err := chromedp.Run(tabCtx, chromedp.Navigate(url)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open page %q: %w", url, err)
	}

	id := uuid.New().String()
	m.mu.Lock()
	m.tabs[id] = cancel
	m.mu.Unlock()

	return &ChromePage{
		tabCtx: tabCtx,
		logger: m.logger.Named("page"),
		tag:    id[:8],
	}, nil
}

// Shutdown terminates all tabs and the browser process.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for id, cancel := range m.tabs {
		cancel()
		delete(m.tabs, id)
	}
	m.mu.Unlock()
	if m.allocatorCancel != nil {
		m.allocatorCancel()
	}
}

// ChromePage drives one tab through the Page interface. A frame-scoped copy
// carries frameNode so queries resolve inside the iframe document.
type ChromePage struct {
	tabCtx    context.Context
	logger    *zap.Logger
	tag       string
	frameNode *cdp.Node
}

var _ Page = (*ChromePage)(nil)
var _ InputDispatcher = (*ChromePage)(nil)

// run executes actions on the tab while honoring the caller's deadline.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(p.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *ChromePage) queryOpts(base ...chromedp.QueryOption) []chromedp.QueryOption {
	if p.frameNode != nil {
		base = append(base, chromedp.FromNode(p.frameNode))
	}
	return base
}

func (p *ChromePage) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, chromedp.Title(&title))
	return title, err
}

func (p *ChromePage) URL(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (p *ChromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, p.queryOpts(chromedp.ByQuery)...))
	return html, err
}

// elementSnapshotJS tags every match with a stable data attribute and returns
// a serializable snapshot. Tagging is the same trick the interaction layer
// uses to keep re-addressing robust against index shifts.
const elementSnapshotJS = `
(() => {
    const nodes = Array.from(document.querySelectorAll(%q));
    return nodes.map((el, i) => {
        let id = el.getAttribute('data-gc-id');
        if (!id) {
            id = 'gc-%s-' + Date.now() + '-' + i;
            el.setAttribute('data-gc-id', id);
        }
        const r = el.getBoundingClientRect();
        const attrs = {};
        for (const a of el.attributes) { attrs[a.name] = a.value; }
        return {
            selector: '[data-gc-id="' + id + '"]',
            nodeName: el.tagName,
            attributes: attrs,
            text: (el.innerText || '').slice(0, 500),
            box: { x: r.x, y: r.y, width: r.width, height: r.height },
        };
    });
})()`

type elementSnapshot struct {
	Selector   string                  `json:"selector"`
	NodeName   string                  `json:"nodeName"`
	Attributes map[string]string       `json:"attributes"`
	Text       string                  `json:"text"`
	Box        schemas.ElementGeometry `json:"box"`
}

func (p *ChromePage) FindAll(ctx context.Context, selector string) ([]*Element, error) {
	var raw []elementSnapshot
	expr := fmt.Sprintf(elementSnapshotJS, selector, p.tag)
	if err := p.Evaluate(ctx, expr, &raw); err != nil {
		return nil, fmt.Errorf("query %q failed: %w", selector, err)
	}
	out := make([]*Element, 0, len(raw))
	for _, s := range raw {
		out = append(out, &Element{
			Selector:   s.Selector,
			NodeName:   s.NodeName,
			Attributes: s.Attributes,
			Text:       s.Text,
			Box:        s.Box,
		})
	}
	return out, nil
}

func (p *ChromePage) Find(ctx context.Context, selector string) (*Element, error) {
	els, err := p.FindAll(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	return els[0], nil
}

func (p *ChromePage) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	if selector == "" {
		return buf, p.run(ctx, chromedp.CaptureScreenshot(&buf))
	}
	return buf, p.run(ctx, chromedp.Screenshot(selector, &buf, p.queryOpts(chromedp.ByQuery)...))
}

func (p *ChromePage) Click(ctx context.Context, x, y float64) error {
	return p.run(ctx, chromedp.MouseClickXY(x, y))
}

func (p *ChromePage) Type(ctx context.Context, selector, text string) error {
	return p.run(ctx,
		chromedp.Click(selector, p.queryOpts(chromedp.ByQuery, chromedp.NodeVisible)...),
		chromedp.SendKeys(selector, text, p.queryOpts(chromedp.ByQuery)...),
	)
}

func (p *ChromePage) Evaluate(ctx context.Context, expr string, out any) error {
	if out == nil {
		var discard json.RawMessage
		return p.run(ctx, chromedp.Evaluate(expr, &discard))
	}
	return p.run(ctx, chromedp.Evaluate(expr, out))
}

func (p *ChromePage) Frame(ctx context.Context, selector string) (Page, error) {
	var nodes []*cdp.Node
	err := p.run(ctx, chromedp.Nodes(selector, &nodes, p.queryOpts(chromedp.ByQuery)...))
	if err != nil {
		return nil, fmt.Errorf("frame %q not found: %w", selector, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("frame %q not found", selector)
	}
	return &ChromePage{
		tabCtx:    p.tabCtx,
		logger:    p.logger,
		tag:       p.tag,
		frameNode: nodes[0],
	}, nil
}

func (p *ChromePage) WaitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.tabCtx.Done():
		return p.tabCtx.Err()
	case <-timer.C:
		return nil
	}
}

// Sleep satisfies the simulator's executor contract.
func (p *ChromePage) Sleep(ctx context.Context, d time.Duration) error {
	return p.WaitFor(ctx, d)
}

// DispatchMouseEvent forwards a synthetic pointer event to the tab. Used by
// the behavioral simulator, which generates its own trajectories.
func (p *ChromePage) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	ev := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButtons(data.Buttons)
	if data.Button != schemas.ButtonNone && data.Button != "" {
		ev = ev.WithButton(input.MouseButton(data.Button))
	}
	if data.ClickCount > 0 {
		ev = ev.WithClickCount(data.ClickCount)
	}
	if data.Type == schemas.MouseWheel {
		ev = ev.WithDeltaX(data.DeltaX).WithDeltaY(data.DeltaY)
	}
	return p.run(ctx, ev)
}

// combineContext derives a context that is canceled when either input is,
// preserving the earlier deadline of the two.
func combineContext(parent, secondary context.Context) (context.Context, context.CancelFunc) {
	if secondary == nil || secondary == context.Background() || secondary == context.TODO() {
		return context.WithCancel(parent)
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := secondary.Deadline(); ok {
		ctx, cancel = context.WithDeadline(parent, deadline)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
