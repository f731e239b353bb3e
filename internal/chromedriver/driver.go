package chromedriver

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/probelab/uidriver/pkg/browser"
)

// Driver implements browser.Driver on one Chrome instance.
type Driver struct {
	inst   *Instance
	config *Config
	logger *zap.Logger
}

var _ browser.Driver = (*Driver)(nil)

// NewDriver wraps an instance as a scenario-facing driver.
func NewDriver(inst *Instance, config *Config, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{inst: inst, config: config, logger: logger}
}

// run executes chromedp actions on the instance, honoring the caller's
// context deadline.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := d.inst.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads the URL and waits for the document body.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, d.config.NavigateTimeout)
	defer cancel()

	d.logger.Debug("Navigating", zap.Int("instance_id", d.inst.ID), zap.String("url", url))
	if err := d.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	); err != nil {
		return fmt.Errorf("chromedriver: navigating to %s: %w", url, err)
	}
	return nil
}

// CurrentURL reports the page location.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("chromedriver: reading location: %w", err)
	}
	return url, nil
}

// Click dispatches a real mouse click on the first match.
func (d *Driver) Click(ctx context.Context, selector string) error {
	if err := d.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("chromedriver: clicking %q: %w", selector, err)
	}
	return nil
}

// SetValue fills an input through the DOM, firing change events.
func (d *Driver) SetValue(ctx context.Context, selector, value string) error {
	if err := d.run(ctx,
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("chromedriver: setting value of %q: %w", selector, err)
	}
	return nil
}

// Text returns the trimmed text content of the first match.
func (d *Driver) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := d.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("chromedriver: reading text of %q: %w", selector, err)
	}
	return text, nil
}

// Exists evaluates a selector probe without waiting for the element.
func (d *Driver) Exists(ctx context.Context, selector string) (bool, error) {
	var exists bool
	script := fmt.Sprintf("document.querySelector(%q) !== null", selector)
	if err := d.run(ctx, chromedp.Evaluate(script, &exists)); err != nil {
		return false, fmt.Errorf("chromedriver: probing %q: %w", selector, err)
	}
	return exists, nil
}

// Visible reports whether the first match takes part in layout.
func (d *Driver) Visible(ctx context.Context, selector string) (bool, error) {
	var visible bool
	script := fmt.Sprintf(
		"(function(){var el=document.querySelector(%q);return el!==null&&el.offsetParent!==null;})()",
		selector)
	if err := d.run(ctx, chromedp.Evaluate(script, &visible)); err != nil {
		return false, fmt.Errorf("chromedriver: checking visibility of %q: %w", selector, err)
	}
	return visible, nil
}

// Count returns the number of matches.
func (d *Driver) Count(ctx context.Context, selector string) (int, error) {
	var count int
	script := fmt.Sprintf("document.querySelectorAll(%q).length", selector)
	if err := d.run(ctx, chromedp.Evaluate(script, &count)); err != nil {
		return 0, fmt.Errorf("chromedriver: counting %q: %w", selector, err)
	}
	return count, nil
}

// SetFiles attaches local files to a file input.
func (d *Driver) SetFiles(ctx context.Context, selector string, paths []string) error {
	if err := d.run(ctx,
		chromedp.SetUploadFiles(selector, paths, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("chromedriver: attaching files to %q: %w", selector, err)
	}
	return nil
}
