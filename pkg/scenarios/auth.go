package scenarios

import (
	"context"

	"github.com/probelab/uidriver/internal/restclient"
	"github.com/probelab/uidriver/pkg/flow"
	"github.com/probelab/uidriver/pkg/harness"
)

// CreateUser registers a new account through the registration dialog and
// verifies the new user ends up logged in.
func CreateUser(h *harness.Harness, p restclient.CreateUserParams) flow.Scenario {
	r := h.NewFlow()

	r.Action("navigate to application", navigateHome(h))
	r.Action("open registration dialog", func(ctx context.Context) error {
		return h.Driver.Click(ctx, SelRegisterLink)
	})
	r.Wait("registration dialog to appear", elementVisible(h, SelRegisterDialog))
	r.Action("fill registration form", func(ctx context.Context) error {
		fields := map[string]string{
			SelRegisterLogin:     p.Login,
			SelRegisterEmail:     p.Email,
			SelRegisterFirstName: p.FirstName,
			SelRegisterLastName:  p.LastName,
			SelRegisterPassword:  p.Password,
		}
		for selector, value := range fields {
			if err := h.Driver.SetValue(ctx, selector, value); err != nil {
				return err
			}
		}
		return nil
	})
	r.Action("submit registration", func(ctx context.Context) error {
		return h.Driver.Click(ctx, SelRegisterButton)
	})
	r.Wait("registration requests to finish", restQuiet(h))
	r.Wait("header to show the new user", elementText(h, SelCurrentUser, p.FirstName+" "+p.LastName))
	r.Action("verify session belongs to the new user", expectCurrentUser(h, p.Login))

	return named("create-user", r.Scenario())
}

// Login signs in through the login dialog with the given credentials and
// verifies the observable current user transitions from absent to present
// with the expected display name.
func Login(h *harness.Harness, login, password, displayName string) flow.Scenario {
	r := h.NewFlow()

	r.Action("navigate to application", navigateHome(h))
	r.Action("verify logged out", expectNoCurrentUser(h))
	r.Action("open login dialog", func(ctx context.Context) error {
		return h.Driver.Click(ctx, SelLoginLink)
	})
	r.Wait("login dialog to appear", elementVisible(h, SelLoginDialog))
	r.Action("fill credentials", func(ctx context.Context) error {
		if err := h.Driver.SetValue(ctx, SelLoginField, login); err != nil {
			return err
		}
		return h.Driver.SetValue(ctx, SelPasswordField, password)
	})
	r.Action("submit login", func(ctx context.Context) error {
		return h.Driver.Click(ctx, SelLoginButton)
	})
	r.Wait("login requests to finish", restQuiet(h))
	r.Wait("header to show the display name", elementText(h, SelCurrentUser, displayName))
	r.Action("verify session user", expectCurrentUser(h, login))

	return named("login", r.Scenario())
}

// Logout signs the current user out and verifies the session is gone.
func Logout(h *harness.Harness) flow.Scenario {
	r := h.NewFlow()

	r.Action("click logout", func(ctx context.Context) error {
		return h.Driver.Click(ctx, SelLogoutLink)
	})
	r.Wait("logout requests to finish", restQuiet(h))
	r.Wait("header to clear", elementText(h, SelCurrentUser, ""))
	r.Action("verify anonymous session", expectNoCurrentUser(h))

	return named("logout", r.Scenario())
}
