package flows_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/probelab/uidriver/internal/restclient"
	"github.com/probelab/uidriver/pkg/harness"
	"github.com/probelab/uidriver/pkg/scenarios"
)

var _ = Describe("Item metadata", Serial, func() {
	var (
		ctx    context.Context
		h      *harness.Harness
		itemID string
	)

	BeforeEach(func() {
		ctx = context.Background()

		h = newHarness()
		user := registerUser(ctx, h)
		folder := makeFolder(ctx, h, user.LastName)

		item, err := h.Client.CreateItem(ctx, folder.ID, "item-"+user.LastName)
		Expect(err).NotTo(HaveOccurred())
		itemID = item.ID
	})

	It("adds, edits, and deletes a metadata field", func() {
		Expect(scenarios.AddMetadata(h, itemID, "color", "red")(ctx)).To(Succeed())
		Expect(scenarios.EditMetadata(h, itemID, "color", "green")(ctx)).To(Succeed())

		item, err := h.Client.GetItem(ctx, itemID)
		Expect(err).NotTo(HaveOccurred())
		Expect(item.Meta).To(HaveKeyWithValue("color", "green"))

		Expect(scenarios.DeleteMetadata(h, itemID, "color")(ctx)).To(Succeed())

		item, err = h.Client.GetItem(ctx, itemID)
		Expect(err).NotTo(HaveOccurred())
		Expect(item.Meta).NotTo(HaveKey("color"))
	})

	It("rejects adding a key that already exists", func() {
		Expect(scenarios.AddMetadata(h, itemID, "color", "red")(ctx)).To(Succeed())
		Expect(scenarios.AddDuplicateMetadata(h, itemID, "color", "blue")(ctx)).To(Succeed())

		item, err := h.Client.GetItem(ctx, itemID)
		Expect(err).NotTo(HaveOccurred())
		Expect(item.Meta).To(HaveKeyWithValue("color", "red"))
	})

	It("merges new keys and deletes nulled ones", func() {
		_, err := h.Client.SetMetadata(ctx, itemID, map[string]interface{}{
			"color": "red",
			"size":  float64(10),
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = h.Client.SetMetadata(ctx, itemID, map[string]interface{}{
			"size":  nil,
			"shape": "round",
		})
		Expect(err).NotTo(HaveOccurred())

		item, err := h.Client.GetItem(ctx, itemID)
		Expect(err).NotTo(HaveOccurred())
		Expect(item.Meta).To(HaveKeyWithValue("color", "red"))
		Expect(item.Meta).To(HaveKeyWithValue("shape", "round"))
		Expect(item.Meta).NotTo(HaveKey("size"))
	})

	It("rejects invalid key names", func() {
		cases := []struct {
			key     string
			message string
		}{
			{"", "Key names must not be empty."},
			{"bad.key", "keys must not contain a period"},
			{"$bad", "keys must not start with a dollar sign"},
		}
		for _, tc := range cases {
			_, err := h.Client.SetMetadata(ctx, itemID, map[string]interface{}{tc.key: "x"})
			Expect(err).To(HaveOccurred(), "key %q should be rejected", tc.key)

			apiErr, ok := restclient.AsAPIError(err)
			Expect(ok).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(400))
			Expect(apiErr.Message).To(ContainSubstring(tc.message))
		}
	})
})
