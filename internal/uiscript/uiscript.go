// Package uiscript stands in for the application's page JavaScript when
// scenarios run against the hermetic fake browser. It attaches click hooks
// that perform the REST calls and DOM updates the real page script would.
package uiscript

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/probelab/uidriver/internal/fakebrowser"
	"github.com/probelab/uidriver/internal/restclient"
	"github.com/probelab/uidriver/pkg/scenarios"
	"github.com/probelab/uidriver/pkg/transfer"
)

// Install attaches the shell page behaviors to the driver. The client keeps
// the session token, so hooks and scenario assertions observe the same
// authentication state.
func Install(d *fakebrowser.Driver, client *restclient.Client, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	d.OnClick(scenarios.SelLoginLink, func(ctx context.Context, d *fakebrowser.Driver) error {
		return d.Show(scenarios.SelLoginDialog)
	})

	d.OnClick(scenarios.SelRegisterLink, func(ctx context.Context, d *fakebrowser.Driver) error {
		return d.Show(scenarios.SelRegisterDialog)
	})

	d.OnClick(scenarios.SelLoginButton, func(ctx context.Context, d *fakebrowser.Driver) error {
		login, err := d.Value(scenarios.SelLoginField)
		if err != nil {
			return err
		}
		password, err := d.Value(scenarios.SelPasswordField)
		if err != nil {
			return err
		}

		user, err := client.Authenticate(ctx, login, password)
		if err != nil {
			if apiErr, ok := restclient.AsAPIError(err); ok {
				logger.Debug("Login rejected", zap.String("login", login), zap.String("message", apiErr.Message))
				if err := d.SetText(scenarios.SelLoginError, apiErr.Message); err != nil {
					return err
				}
				return d.Show(scenarios.SelLoginError)
			}
			return err
		}

		if err := d.Hide(scenarios.SelLoginDialog); err != nil {
			return err
		}
		return showSignedIn(d, user)
	})

	d.OnClick(scenarios.SelRegisterButton, func(ctx context.Context, d *fakebrowser.Driver) error {
		params := restclient.CreateUserParams{}
		fields := []struct {
			selector string
			dst      *string
		}{
			{scenarios.SelRegisterLogin, &params.Login},
			{scenarios.SelRegisterEmail, &params.Email},
			{scenarios.SelRegisterFirstName, &params.FirstName},
			{scenarios.SelRegisterLastName, &params.LastName},
			{scenarios.SelRegisterPassword, &params.Password},
		}
		for _, f := range fields {
			v, err := d.Value(f.selector)
			if err != nil {
				return err
			}
			*f.dst = v
		}

		user, err := client.CreateUser(ctx, params)
		if err != nil {
			return err
		}

		if err := d.Hide(scenarios.SelRegisterDialog); err != nil {
			return err
		}
		return showSignedIn(d, user)
	})

	d.OnClick(scenarios.SelLogoutLink, func(ctx context.Context, d *fakebrowser.Driver) error {
		if err := client.Logout(ctx); err != nil {
			return err
		}
		return d.SetText(scenarios.SelCurrentUser, "")
	})

	d.OnClick(scenarios.SelStartUpload, func(ctx context.Context, d *fakebrowser.Driver) error {
		paths := d.Files(scenarios.SelFileInput)
		if len(paths) == 0 {
			return d.SetText(scenarios.SelUploadProgress, "No file selected.")
		}
		folderID, err := d.Value(scenarios.SelUploadFolder)
		if err != nil {
			return err
		}

		for _, path := range paths {
			if err := uploadPath(ctx, client, folderID, path); err != nil {
				logger.Debug("Upload failed", zap.String("path", path), zap.Error(err))
				if setErr := d.SetText(scenarios.SelUploadProgress, "Upload failed: "+err.Error()); setErr != nil {
					return setErr
				}
				return err
			}
		}
		return d.SetText(scenarios.SelUploadProgress, "Upload complete.")
	})
}

// uploadChunkSize matches the page widget's chunking.
const uploadChunkSize = 64 * 1024

// uploadPath streams one local file through the chunked upload protocol, the
// way the page's upload widget does.
func uploadPath(ctx context.Context, client *restclient.Client, folderID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	up, err := client.InitUpload(ctx, "folder", folderID, filepath.Base(path),
		int64(len(data)), "application/octet-stream")
	if err != nil {
		return err
	}

	offset := int64(0)
	for offset < int64(len(data)) {
		end := offset + uploadChunkSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		resp, err := client.UploadChunk(ctx, &transfer.ChunkRequest{
			UploadID:  up.ID,
			Offset:    offset,
			Name:      up.Name,
			Body:      data[offset:end],
			Multipart: true,
		})
		if err != nil {
			return err
		}
		offset = resp.Received
		if resp.Done {
			break
		}
	}
	return nil
}

func showSignedIn(d *fakebrowser.Driver, user *restclient.User) error {
	return d.SetText(scenarios.SelCurrentUser, user.DisplayName())
}
