// Package scenarios is the library's public namespace of scenario builders.
// Each builder composes a flow of actions and polled waits over a harness
// and returns a Scenario the host test case invokes.
package scenarios

import (
	"context"
	"fmt"

	"github.com/probelab/uidriver/pkg/flow"
	"github.com/probelab/uidriver/pkg/harness"
)

// Element selectors for the application shell. The fixture serves markup
// with these ids/classes; a real deployment uses the same ones.
const (
	SelLoginLink     = ".g-login-link"
	SelLogoutLink    = ".g-logout-link"
	SelRegisterLink  = ".g-register-link"
	SelCurrentUser   = ".g-user-text"
	SelLoginDialog   = "#login-dialog"
	SelLoginField    = "#g-login"
	SelPasswordField = "#g-password"
	SelLoginButton   = "#g-login-button"
	SelLoginError    = "#login-error"

	SelRegisterDialog    = "#register-dialog"
	SelRegisterLogin     = "#g-register-login"
	SelRegisterEmail     = "#g-register-email"
	SelRegisterFirstName = "#g-register-first-name"
	SelRegisterLastName  = "#g-register-last-name"
	SelRegisterPassword  = "#g-register-password"
	SelRegisterButton    = "#g-register-button"

	SelUploadFolder   = "#g-upload-folder"
	SelFileInput      = "#g-file-input"
	SelStartUpload    = "#g-start-upload"
	SelUploadProgress = "#upload-progress"
)

// restQuiet is the standard predicate for REST quiescence: no requests in
// flight on the harness client.
func restQuiet(h *harness.Harness) flow.Predicate {
	return func(ctx context.Context) (bool, error) {
		return h.Client.PendingRequests() == 0, nil
	}
}

// elementVisible waits for a selector to become visible.
func elementVisible(h *harness.Harness, selector string) flow.Predicate {
	return func(ctx context.Context) (bool, error) {
		return h.Driver.Visible(ctx, selector)
	}
}

// elementText waits for a selector's text to equal want.
func elementText(h *harness.Harness, selector, want string) flow.Predicate {
	return func(ctx context.Context) (bool, error) {
		text, err := h.Driver.Text(ctx, selector)
		if err != nil {
			return false, err
		}
		return text == want, nil
	}
}

// navigateHome loads the application shell.
func navigateHome(h *harness.Harness) flow.ActionFunc {
	return func(ctx context.Context) error {
		return h.Driver.Navigate(ctx, h.BaseURL+"/")
	}
}

// expectNoCurrentUser asserts the API sees an anonymous session.
func expectNoCurrentUser(h *harness.Harness) flow.ActionFunc {
	return func(ctx context.Context) error {
		user, err := h.Client.CurrentUser(ctx)
		if err != nil {
			return err
		}
		if user != nil {
			return &flow.AssertionError{What: "current user", Expected: "<absent>", Actual: user.Login}
		}
		return nil
	}
}

// expectCurrentUser asserts the API session belongs to the given login.
func expectCurrentUser(h *harness.Harness, login string) flow.ActionFunc {
	return func(ctx context.Context) error {
		user, err := h.Client.CurrentUser(ctx)
		if err != nil {
			return err
		}
		if user == nil {
			return &flow.AssertionError{What: "current user", Expected: login, Actual: "<absent>"}
		}
		return flow.Expect("current user login", login, user.Login)
	}
}

// named wraps a scenario so failures say which scenario they came from.
func named(name string, s flow.Scenario) flow.Scenario {
	return func(ctx context.Context) error {
		if err := s(ctx); err != nil {
			return fmt.Errorf("scenario %s: %w", name, err)
		}
		return nil
	}
}
