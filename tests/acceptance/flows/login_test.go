package flows_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/probelab/uidriver/pkg/scenarios"
)

var _ = Describe("Login and logout", Serial, func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("signs in through the dialog and out through the header", func() {
		By("Creating the account out of band")
		user := freshUser()
		_, err := apiClient().CreateUser(ctx, user)
		Expect(err).NotTo(HaveOccurred())

		h := newHarness()

		By("Running the login scenario")
		display := user.FirstName + " " + user.LastName
		Expect(scenarios.Login(h, user.Login, user.Password, display)(ctx)).To(Succeed())

		By("Running the logout scenario")
		Expect(scenarios.Logout(h)(ctx)).To(Succeed())

		By("Verifying the session is gone")
		current, err := h.Client.CurrentUser(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(current).To(BeNil())
	})

	It("shows the server's message when credentials are wrong", func() {
		By("Creating the account out of band")
		user := freshUser()
		_, err := apiClient().CreateUser(ctx, user)
		Expect(err).NotTo(HaveOccurred())

		h := newHarness()

		By("Attempting a login with the wrong password")
		r := h.NewFlow()
		r.Action("navigate", func(ctx context.Context) error {
			return h.Driver.Navigate(ctx, h.BaseURL+"/")
		})
		r.Action("open login dialog", func(ctx context.Context) error {
			return h.Driver.Click(ctx, scenarios.SelLoginLink)
		})
		r.Action("fill wrong credentials", func(ctx context.Context) error {
			if err := h.Driver.SetValue(ctx, scenarios.SelLoginField, user.Login); err != nil {
				return err
			}
			return h.Driver.SetValue(ctx, scenarios.SelPasswordField, "wrong-"+user.Password)
		})
		r.Action("submit", func(ctx context.Context) error {
			return h.Driver.Click(ctx, scenarios.SelLoginButton)
		})
		Expect(r.Run(ctx)).To(Succeed())

		By("Verifying the error element is visible with the server's message")
		visible, err := h.Driver.Visible(ctx, scenarios.SelLoginError)
		Expect(err).NotTo(HaveOccurred())
		Expect(visible).To(BeTrue())

		text, err := h.Driver.Text(ctx, scenarios.SelLoginError)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("Login failed."))

		By("Verifying no session was created")
		current, err := h.Client.CurrentUser(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(current).To(BeNil())
	})

	It("fails the login scenario when a session already exists", func() {
		h := newHarness()
		user := registerUser(ctx, h)

		// The scenario asserts an anonymous session first; running it while
		// still signed in must fail with that assertion.
		err := scenarios.Login(h, user.Login, user.Password, "ignored")(ctx)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("current user"))
	})
})
