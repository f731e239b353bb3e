package flows_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/probelab/uidriver/internal/restclient"
	"github.com/probelab/uidriver/pkg/harness"
	"github.com/probelab/uidriver/pkg/scenarios"
	"github.com/probelab/uidriver/pkg/transfer"
)

var _ = Describe("Simulated uploads", Serial, func() {
	var (
		ctx    context.Context
		h      *harness.Harness
		folder restclient.Folder
	)

	BeforeEach(func() {
		ctx = context.Background()

		h = newHarness()
		user := registerUser(ctx, h)
		folder = makeFolder(ctx, h, user.LastName)
	})

	It("uploads a synthetic file in chunks and stores it intact", func() {
		const size = int64(300 << 10)

		var file restclient.File
		Expect(scenarios.UploadFile(h, scenarios.UploadSpec{
			FolderID:  folder.ID,
			Name:      "payload.bin",
			Size:      size,
			ChunkSize: 100 << 10,
			Source:    transfer.DashSource{},
		}, &file)(ctx)).To(Succeed())

		Expect(file.Size).To(Equal(size))

		By("Downloading the stored content")
		data, err := h.Client.Download(ctx, file.ID, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(int64(len(data))).To(Equal(size))
		Expect(bytes.Count(data, []byte("-"))).To(Equal(int(size)), "payload should be all filler bytes")

		By("Verifying the stored digest")
		Expect(file.Digest).To(Equal(fmt.Sprintf("%016x", xxhash.Sum64(data))))

		By("Verifying the interceptor counted the substituted bytes")
		rec, ok := h.InstallInterceptor().Record()
		Expect(ok).To(BeTrue())
		Expect(rec.BytesSent).To(Equal(size))
	})

	It("resumes after the server rejects a padded chunk", func() {
		const size = int64(256 << 10)

		var file restclient.File
		Expect(scenarios.ResumeInterruptedUpload(h, scenarios.UploadSpec{
			FolderID:  folder.ID,
			Name:      "resume.bin",
			Size:      size,
			ChunkSize: 64 << 10,
			Source:    transfer.DashSource{},
		}, &file)(ctx)).To(Succeed())

		Expect(file.Size).To(Equal(size))

		data, err := h.Client.Download(ctx, file.ID, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(int64(len(data))).To(Equal(size))
	})

	It("uploads a real file through the page's upload widget", func() {
		content := bytes.Repeat([]byte("form-upload "), 2048)
		path := filepath.Join(GinkgoT().TempDir(), "report.bin")
		Expect(os.WriteFile(path, content, 0o600)).To(Succeed())

		var file restclient.File
		Expect(scenarios.UploadThroughForm(h, folder.ID, path, &file)(ctx)).To(Succeed())

		Expect(file.Name).To(Equal("report.bin"))
		Expect(file.Size).To(Equal(int64(len(content))))

		By("Verifying the widget reported completion")
		text, err := h.Driver.Text(ctx, scenarios.SelUploadProgress)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("Upload complete."))

		By("Downloading the stored content")
		data, err := h.Client.Download(ctx, file.ID, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(content))
	})

	It("reports when the upload widget has no file attached", func() {
		Expect(h.Driver.Click(ctx, scenarios.SelStartUpload)).To(Succeed())

		text, err := h.Driver.Text(ctx, scenarios.SelUploadProgress)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("No file selected."))
	})

	It("rejects a chunk at the wrong offset without advancing", func() {
		up, err := h.Client.InitUpload(ctx, "folder", folder.ID, "skewed.bin", 1024, "application/octet-stream")
		Expect(err).NotTo(HaveOccurred())

		_, err = h.Client.UploadChunk(ctx, &transfer.ChunkRequest{
			UploadID:  up.ID,
			Offset:    512,
			Name:      "skewed.bin",
			Body:      bytes.Repeat([]byte("-"), 512),
			Multipart: true,
		})
		Expect(err).To(HaveOccurred())

		apiErr, ok := restclient.AsAPIError(err)
		Expect(ok).To(BeTrue())
		Expect(apiErr.Message).To(Equal("Invalid chunk offset."))

		offset, err := h.Client.UploadOffset(ctx, up.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(offset).To(BeZero())
	})

	It("poisons the offset header on padded raw chunks", func() {
		up, err := h.Client.InitUpload(ctx, "folder", folder.ID, "raw.bin", 1024, "application/octet-stream")
		Expect(err).NotTo(HaveOccurred())

		in := h.InstallInterceptor()
		in.Prepare(transfer.Record{Size: 1024, ExtraBytes: 3}, transfer.DashSource{})

		_, err = h.Uploader().UploadChunk(ctx, &transfer.ChunkRequest{
			UploadID: up.ID,
			Offset:   0,
			Name:     "raw.bin",
			Body:     make([]byte, 512),
		})
		Expect(err).To(HaveOccurred())

		apiErr, ok := restclient.AsAPIError(err)
		Expect(ok).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(400))
		Expect(apiErr.Message).To(Equal("Invalid chunk offset."))
	})

	It("fails fast when no synthetic source is prepared", func() {
		in := h.InstallInterceptor()
		in.Reset()

		_, err := in.UploadChunk(ctx, &transfer.ChunkRequest{
			UploadID:  "whatever",
			Offset:    0,
			Body:      make([]byte, 16),
			Multipart: true,
		})
		Expect(errors.Is(err, transfer.ErrNoSource)).To(BeTrue())
	})
})
