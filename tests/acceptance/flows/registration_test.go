package flows_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/probelab/uidriver/internal/restclient"
	"github.com/probelab/uidriver/pkg/scenarios"
)

var _ = Describe("Registration", Serial, func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("registers a new user through the dialog and signs them in", func() {
		h := newHarness()
		user := freshUser()

		By("Running the registration scenario")
		Expect(scenarios.CreateUser(h, user)(ctx)).To(Succeed())

		By("Verifying the header shows the display name")
		text, err := h.Driver.Text(ctx, scenarios.SelCurrentUser)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal(user.FirstName + " " + user.LastName))

		By("Verifying the API session belongs to the new user")
		current, err := h.Client.CurrentUser(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(current).NotTo(BeNil())
		Expect(current.Login).To(Equal(user.Login))
		Expect(current.Email).To(Equal(user.Email))
	})

	It("rejects a duplicate login", func() {
		user := freshUser()

		By("Registering the login once")
		_, err := apiClient().CreateUser(ctx, user)
		Expect(err).NotTo(HaveOccurred())

		By("Registering the same login again")
		user.Email = "other-" + user.Email
		_, err = apiClient().CreateUser(ctx, user)
		Expect(err).To(HaveOccurred())

		apiErr, ok := restclient.AsAPIError(err)
		Expect(ok).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(400))
		Expect(apiErr.Message).To(Equal("That login is already registered."))
	})

	It("requires login, email, and password", func() {
		user := freshUser()
		user.Password = ""

		_, err := apiClient().CreateUser(ctx, user)
		Expect(err).To(HaveOccurred())

		apiErr, ok := restclient.AsAPIError(err)
		Expect(ok).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(400))
		Expect(apiErr.Message).To(ContainSubstring("required"))
	})
})
