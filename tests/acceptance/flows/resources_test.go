package flows_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/probelab/uidriver/internal/restclient"
	"github.com/probelab/uidriver/pkg/scenarios"
)

var _ = Describe("Collections and folders", Serial, func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("creates a collection with a folder inside", func() {
		h := newHarness()
		user := registerUser(ctx, h)

		var coll restclient.Collection
		Expect(scenarios.CreateCollection(h, "coll-"+user.LastName, "flow suite", false, &coll)(ctx)).To(Succeed())
		Expect(coll.ID).NotTo(BeEmpty())
		Expect(coll.Public).To(BeFalse())

		var folder restclient.Folder
		Expect(scenarios.CreateFolder(h, "collection", coll.ID, "folder-"+user.LastName, &folder)(ctx)).To(Succeed())
		Expect(folder.ParentID).To(Equal(coll.ID))
		Expect(folder.ParentType).To(Equal("collection"))
	})

	It("opens a folder and lists its items", func() {
		h := newHarness()
		user := registerUser(ctx, h)

		folder := makeFolder(ctx, h, user.LastName)
		item, err := h.Client.CreateItem(ctx, folder.ID, "doc-"+user.LastName)
		Expect(err).NotTo(HaveOccurred())

		var items []restclient.Item
		Expect(scenarios.OpenFolder(h, folder.ID, &items)(ctx)).To(Succeed())
		Expect(items).To(HaveLen(1))
		Expect(items[0].ID).To(Equal(item.ID))

		url, err := h.Driver.CurrentURL(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(url).To(ContainSubstring(folder.ID))
	})

	It("keeps a private collection hidden from anonymous readers", func() {
		h := newHarness()
		user := registerUser(ctx, h)

		var coll restclient.Collection
		Expect(scenarios.CreateCollection(h, "coll-"+user.LastName, "private", false, &coll)(ctx)).To(Succeed())

		By("Reading anonymously")
		_, err := apiClient().GetCollection(ctx, coll.ID)
		Expect(err).To(HaveOccurred())
		apiErr, ok := restclient.AsAPIError(err)
		Expect(ok).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(403))

		By("Making the collection public")
		Expect(scenarios.SetAccess(h, "collection", coll.ID, true)(ctx)).To(Succeed())

		By("Reading anonymously again")
		got, err := apiClient().GetCollection(ctx, coll.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Public).To(BeTrue())
		Expect(got.Name).To(Equal(coll.Name))
	})

	It("refuses access changes from a different user", func() {
		h := newHarness()
		owner := registerUser(ctx, h)

		var coll restclient.Collection
		Expect(scenarios.CreateCollection(h, "coll-"+owner.LastName, "owned", false, &coll)(ctx)).To(Succeed())

		By("Signing up a second user on a separate client")
		other := apiClient()
		_, err := other.CreateUser(ctx, freshUser())
		Expect(err).NotTo(HaveOccurred())

		By("Attempting the access change as the second user")
		err = other.SetAccess(ctx, "collection", coll.ID, true)
		Expect(err).To(HaveOccurred())
		apiErr, ok := restclient.AsAPIError(err)
		Expect(ok).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(403))

		By("Verifying the flag is unchanged")
		got, err := h.Client.GetCollection(ctx, coll.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Public).To(BeFalse())
	})
})
