package scenarios

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/probelab/uidriver/internal/restclient"
	"github.com/probelab/uidriver/pkg/flow"
	"github.com/probelab/uidriver/pkg/harness"
	"github.com/probelab/uidriver/pkg/transfer"
)

// UploadSpec describes a simulated upload.
type UploadSpec struct {
	FolderID  string
	Name      string
	Size      int64
	ChunkSize int64

	// Source supplies the synthetic payload. Defaults to DashSource.
	Source transfer.Source
}

func (s UploadSpec) source() transfer.Source {
	if s.Source != nil {
		return s.Source
	}
	return transfer.DashSource{}
}

func (s UploadSpec) chunkSize() int64 {
	if s.ChunkSize > 0 {
		return s.ChunkSize
	}
	return 64 * 1024
}

// UploadFile uploads a synthetic file into a folder in chunks through the
// interceptor, waits for the transfer to settle, and verifies the stored
// file's size and the new item in the folder.
func UploadFile(h *harness.Harness, spec UploadSpec, out *restclient.File) flow.Scenario {
	r := h.NewFlow()

	var (
		uploadID string
		fileID   string
	)

	r.Action("arm the transfer interceptor", func(ctx context.Context) error {
		in := h.InstallInterceptor()
		in.Prepare(transfer.Record{Size: spec.Size, SourcePath: spec.Name}, spec.source())
		return nil
	})
	r.Action("init upload", func(ctx context.Context) error {
		up, err := h.Client.InitUpload(ctx, "folder", spec.FolderID, spec.Name, spec.Size, "application/octet-stream")
		if err != nil {
			return err
		}
		uploadID = up.ID
		return nil
	})
	r.Action("send chunks", func(ctx context.Context) error {
		uploader := h.Uploader()
		chunkSize := spec.chunkSize()

		for offset := int64(0); offset < spec.Size; {
			n := chunkSize
			if spec.Size-offset < n {
				n = spec.Size - offset
			}
			resp, err := uploader.UploadChunk(ctx, &transfer.ChunkRequest{
				UploadID:  uploadID,
				Offset:    offset,
				Name:      spec.Name,
				Body:      make([]byte, n),
				Multipart: true,
			})
			if err != nil {
				return err
			}
			offset = resp.Received
			if resp.Done {
				fileID = resp.FileID
			}
		}
		return nil
	})
	r.Wait("upload requests to finish", restQuiet(h))
	r.Action("verify stored file", func(ctx context.Context) error {
		if fileID == "" {
			return &flow.AssertionError{What: "upload completion", Expected: "file id", Actual: "<none>"}
		}
		file, err := h.Client.GetFile(ctx, fileID)
		if err != nil {
			return err
		}
		if err := flow.Expect("stored file size", spec.Size, file.Size); err != nil {
			return err
		}
		if out != nil {
			*out = *file
		}
		return nil
	})
	r.Wait("item to appear in folder", func(ctx context.Context) (bool, error) {
		items, err := h.Client.ListItems(ctx, spec.FolderID)
		if err != nil {
			return false, err
		}
		for _, it := range items {
			if it.Name == spec.Name {
				return true, nil
			}
		}
		return false, nil
	})

	return named("upload-file", r.Scenario())
}

// ResumeInterruptedUpload simulates a transfer the server rejects: the
// interceptor pads the first chunk past the declared size so the server
// refuses it, the scenario confirms the upload offset did not advance, then
// disarms the padding and resumes from the reported offset to completion.
func ResumeInterruptedUpload(h *harness.Harness, spec UploadSpec, out *restclient.File) flow.Scenario {
	r := h.NewFlow()

	chunkSize := spec.chunkSize()

	var (
		uploadID string
		fileID   string
	)

	r.Action("arm interceptor with padding", func(ctx context.Context) error {
		in := h.InstallInterceptor()
		in.Prepare(transfer.Record{Size: spec.Size, ExtraBytes: 7}, spec.source())
		return nil
	})
	r.Action("init upload", func(ctx context.Context) error {
		up, err := h.Client.InitUpload(ctx, "folder", spec.FolderID, spec.Name, spec.Size, "application/octet-stream")
		if err != nil {
			return err
		}
		uploadID = up.ID
		return nil
	})
	r.Action("send padded chunk and observe rejection", func(ctx context.Context) error {
		// The chunk declares the full remaining size so the interceptor's
		// padding is guaranteed to overshoot the declared upload size.
		_, err := h.Uploader().UploadChunk(ctx, &transfer.ChunkRequest{
			UploadID:  uploadID,
			Offset:    0,
			Name:      spec.Name,
			Body:      make([]byte, spec.Size),
			Multipart: true,
		})
		if err == nil {
			return &flow.AssertionError{What: "padded chunk", Expected: "rejection", Actual: "accepted"}
		}
		var apiErr *restclient.APIError
		if !errors.As(err, &apiErr) || !strings.Contains(apiErr.Message, "too many bytes") {
			return &flow.AssertionError{What: "padded chunk rejection", Expected: "Received too many bytes.", Actual: err.Error()}
		}
		return nil
	})
	r.Action("verify offset did not advance", func(ctx context.Context) error {
		offset, err := h.Client.UploadOffset(ctx, uploadID)
		if err != nil {
			return err
		}
		return flow.Expect("upload offset after rejection", int64(0), offset)
	})
	r.Action("disarm padding and resume", func(ctx context.Context) error {
		in := h.InstallInterceptor()
		in.Prepare(transfer.Record{Size: spec.Size}, spec.source())

		offset, err := h.Client.UploadOffset(ctx, uploadID)
		if err != nil {
			return err
		}
		for offset < spec.Size {
			n := chunkSize
			if spec.Size-offset < n {
				n = spec.Size - offset
			}
			resp, err := h.Uploader().UploadChunk(ctx, &transfer.ChunkRequest{
				UploadID:  uploadID,
				Offset:    offset,
				Name:      spec.Name,
				Body:      make([]byte, n),
				Multipart: true,
			})
			if err != nil {
				return err
			}
			offset = resp.Received
			if resp.Done {
				fileID = resp.FileID
			}
		}
		return nil
	})
	r.Wait("upload requests to finish", restQuiet(h))
	r.Action("verify completed file", func(ctx context.Context) error {
		if fileID == "" {
			return &flow.AssertionError{What: "resumed upload completion", Expected: "file id", Actual: "<none>"}
		}
		file, err := h.Client.GetFile(ctx, fileID)
		if err != nil {
			return err
		}
		if err := flow.Expect("resumed file size", spec.Size, file.Size); err != nil {
			return err
		}
		if out != nil {
			*out = *file
		}
		return nil
	})

	return named("resume-interrupted-upload", r.Scenario())
}

// UploadThroughForm drives the page's upload widget with a real local file:
// attach the file, set the target folder, start the upload, and wait for the
// progress text to report completion. The stored file is written to out when
// non-nil.
func UploadThroughForm(h *harness.Harness, folderID, path string, out *restclient.File) flow.Scenario {
	r := h.NewFlow()

	name := filepath.Base(path)

	r.Action("navigate to application", navigateHome(h))
	r.Action("attach file to upload form", func(ctx context.Context) error {
		if err := h.Driver.SetValue(ctx, SelUploadFolder, folderID); err != nil {
			return err
		}
		return h.Driver.SetFiles(ctx, SelFileInput, []string{path})
	})
	r.Action("start upload", func(ctx context.Context) error {
		return h.Driver.Click(ctx, SelStartUpload)
	})
	r.Wait("upload progress to report completion",
		elementText(h, SelUploadProgress, "Upload complete."))
	r.Wait("upload requests to finish", restQuiet(h))

	var file restclient.File
	r.Wait("uploaded file to appear in the folder", func(ctx context.Context) (bool, error) {
		items, err := h.Client.ListItems(ctx, folderID)
		if err != nil {
			return false, err
		}
		for _, item := range items {
			if item.Name != name {
				continue
			}
			files, err := h.Client.ListFiles(ctx, item.ID)
			if err != nil {
				return false, err
			}
			if len(files) == 0 {
				return false, nil
			}
			file = files[0]
			return true, nil
		}
		return false, nil
	})
	r.Action("expose uploaded file", func(ctx context.Context) error {
		if out != nil {
			*out = file
		}
		return nil
	})

	return named("upload-through-form", r.Scenario())
}
