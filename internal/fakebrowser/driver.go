// Package fakebrowser is a hermetic, in-memory implementation of
// browser.Driver. It fetches and parses real HTML from the target server,
// and lets a suite script click behavior through hooks, standing in for the
// application's JavaScript. The chromedp driver covers real-browser runs.
package fakebrowser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/probelab/uidriver/pkg/browser"
)

// ClickHook simulates the page script attached to an element. Hooks receive
// the driver so they can read form values and mutate the page.
type ClickHook func(ctx context.Context, d *Driver) error

// Driver is a scriptable in-memory browser page.
type Driver struct {
	httpClient *http.Client
	logger     *zap.Logger

	mu         sync.Mutex
	currentURL string
	doc        *html.Node
	hooks      []hookEntry
	files      map[string][]string
}

type hookEntry struct {
	selector string
	fn       ClickHook
}

var _ browser.Driver = (*Driver)(nil)

// New creates a fake driver. A nil logger is replaced with a no-op logger.
func New(logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		files:      make(map[string][]string),
	}
}

// OnClick registers a hook invoked when Click matches the selector's
// element. Later registrations win when several selectors match.
func (d *Driver) OnClick(selector string, fn ClickHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, hookEntry{selector: selector, fn: fn})
}

// Navigate fetches the URL and parses the returned document.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("fakebrowser: building request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fakebrowser: navigating to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("fakebrowser: %s returned %d: %s", url, resp.StatusCode, string(body))
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return fmt.Errorf("fakebrowser: parsing %s: %w", url, err)
	}

	d.mu.Lock()
	d.currentURL = url
	d.doc = doc
	d.files = make(map[string][]string)
	d.mu.Unlock()

	d.logger.Debug("Navigated", zap.String("url", url))
	return nil
}

// CurrentURL reports the last navigated URL.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentURL, nil
}

// Click finds the element and runs the most recently registered matching
// hook. A click with no hook is a no-op, like clicking inert markup.
func (d *Driver) Click(ctx context.Context, selector string) error {
	d.mu.Lock()
	node := d.firstLocked(selector)
	if node == nil {
		d.mu.Unlock()
		return fmt.Errorf("fakebrowser: no element matches %q", selector)
	}

	var hook ClickHook
	for i := len(d.hooks) - 1; i >= 0; i-- {
		if nodeMatchesAny(node, findAll(d.doc, parseSelector(d.hooks[i].selector))) {
			hook = d.hooks[i].fn
			break
		}
	}
	d.mu.Unlock()

	d.logger.Debug("Click", zap.String("selector", selector), zap.Bool("hooked", hook != nil))
	if hook != nil {
		return hook(ctx, d)
	}
	return nil
}

// SetValue sets the value attribute of the first matching element.
func (d *Driver) SetValue(ctx context.Context, selector, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	node := d.firstLocked(selector)
	if node == nil {
		return fmt.Errorf("fakebrowser: no element matches %q", selector)
	}
	setAttr(node, "value", value)
	return nil
}

// Value reads the value attribute of the first matching element. Hooks use
// this to collect form fields.
func (d *Driver) Value(selector string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	node := d.firstLocked(selector)
	if node == nil {
		return "", fmt.Errorf("fakebrowser: no element matches %q", selector)
	}
	return attrValue(node, "value"), nil
}

// Text returns the text content of the first matching element.
func (d *Driver) Text(ctx context.Context, selector string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	node := d.firstLocked(selector)
	if node == nil {
		return "", fmt.Errorf("fakebrowser: no element matches %q", selector)
	}
	return nodeText(node), nil
}

// Exists reports whether any element matches.
func (d *Driver) Exists(ctx context.Context, selector string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.firstLocked(selector) != nil, nil
}

// Visible reports whether the first match exists and no ancestor hides it.
func (d *Driver) Visible(ctx context.Context, selector string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	node := d.firstLocked(selector)
	if node == nil {
		return false, nil
	}
	return !isHidden(node), nil
}

// Count returns the number of matching elements.
func (d *Driver) Count(ctx context.Context, selector string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return 0, nil
	}
	return len(findAll(d.doc, parseSelector(selector))), nil
}

// SetFiles records file paths on the first matching file input.
func (d *Driver) SetFiles(ctx context.Context, selector string, paths []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	node := d.firstLocked(selector)
	if node == nil {
		return fmt.Errorf("fakebrowser: no element matches %q", selector)
	}
	d.files[selector] = append([]string(nil), paths...)
	return nil
}

// Files returns the paths previously attached to a file input.
func (d *Driver) Files(selector string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.files[selector]
}

// SetText replaces the text content of the first matching element. Hooks use
// this to simulate page updates.
func (d *Driver) SetText(selector, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	node := d.firstLocked(selector)
	if node == nil {
		return fmt.Errorf("fakebrowser: no element matches %q", selector)
	}
	replaceText(node, text)
	return nil
}

// Show clears display:none on the first matching element.
func (d *Driver) Show(selector string) error {
	return d.setStyle(selector, "")
}

// Hide sets display:none on the first matching element.
func (d *Driver) Hide(selector string) error {
	return d.setStyle(selector, "display:none")
}

// AppendChild adds a child element with the given tag, class, and text under
// the first matching parent. Hooks use this to grow lists the way the page
// script would.
func (d *Driver) AppendChild(parentSelector, tag, class, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	parent := d.firstLocked(parentSelector)
	if parent == nil {
		return fmt.Errorf("fakebrowser: no element matches %q", parentSelector)
	}
	child := &html.Node{
		Type: html.ElementNode,
		Data: tag,
		Attr: []html.Attribute{{Key: "class", Val: class}},
	}
	child.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	parent.AppendChild(child)
	return nil
}

func (d *Driver) setStyle(selector, style string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	node := d.firstLocked(selector)
	if node == nil {
		return fmt.Errorf("fakebrowser: no element matches %q", selector)
	}
	setAttr(node, "style", style)
	return nil
}

func (d *Driver) firstLocked(selector string) *html.Node {
	if d.doc == nil {
		return nil
	}
	matches := findAll(d.doc, parseSelector(selector))
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

func nodeMatchesAny(node *html.Node, candidates []*html.Node) bool {
	for _, c := range candidates {
		if c == node {
			return true
		}
	}
	return false
}
