// Package browser defines the DOM and navigation capability consumed by
// scenario builders. Implementations: a chromedp-backed driver for real
// headless Chrome runs, and an in-memory fake for hermetic suites.
package browser

import "context"

// Driver is the browser capability a scenario drives. All operations take a
// CSS selector in the subset the fake driver supports: tag, #id, .class,
// [name=value], and descendant combinations thereof.
type Driver interface {
	// Navigate loads the given URL and blocks until the page is ready.
	Navigate(ctx context.Context, url string) error

	// CurrentURL reports the page's current location.
	CurrentURL(ctx context.Context) (string, error)

	// Click dispatches a click on the first element matching the selector.
	Click(ctx context.Context, selector string) error

	// SetValue sets the value of the first matching input or textarea.
	SetValue(ctx context.Context, selector, value string) error

	// Text returns the visible text content of the first matching element.
	Text(ctx context.Context, selector string) (string, error)

	// Exists reports whether any element matches the selector.
	Exists(ctx context.Context, selector string) (bool, error)

	// Visible reports whether the first matching element exists and is not
	// hidden.
	Visible(ctx context.Context, selector string) (bool, error)

	// Count returns the number of elements matching the selector.
	Count(ctx context.Context, selector string) (int, error)

	// SetFiles attaches file paths to the first matching file input.
	SetFiles(ctx context.Context, selector string, paths []string) error
}
