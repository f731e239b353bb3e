package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/probelab/uidriver/internal/common/runid"
	"github.com/probelab/uidriver/internal/metrics"
	"github.com/probelab/uidriver/internal/restclient"
	"github.com/probelab/uidriver/pkg/flow"
	"github.com/probelab/uidriver/pkg/harness"
	"github.com/probelab/uidriver/pkg/scenarios"
	"github.com/probelab/uidriver/pkg/transfer"
)

// A suite is a named sequence of scenarios sharing one fresh account. Each
// run generates unique names so suites can repeat against a live target
// without colliding with earlier data.
type suite struct {
	name  string
	build func(h *harness.Harness) []flow.Scenario
}

type runSummary struct {
	passed  int
	failed  int
	elapsed time.Duration
}

func allSuites() []suite {
	return []suite{
		{name: "auth", build: authSuite},
		{name: "resources", build: resourcesSuite},
		{name: "metadata", build: metadataSuite},
		{name: "upload", build: uploadSuite},
		{name: "upload-resume", build: uploadResumeSuite},
	}
}

// runSuites executes the selected suites in order. An empty selection means
// all of them. Suites run to completion even when earlier ones fail, so one
// run reports every broken flow.
func runSuites(ctx context.Context, h *harness.Harness, collector *metrics.Collector, selected []string, logger *zap.Logger) runSummary {
	suites := allSuites()
	if len(selected) > 0 {
		byName := make(map[string]suite, len(suites))
		for _, s := range suites {
			byName[s.name] = s
		}
		suites = suites[:0]
		for _, name := range selected {
			s, ok := byName[name]
			if !ok {
				logger.Warn("Unknown scenario suite in configuration", zap.String("suite", name))
				continue
			}
			suites = append(suites, s)
		}
	}

	var summary runSummary
	start := time.Now()

	for _, s := range suites {
		if ctx.Err() != nil {
			logger.Warn("Run cancelled", zap.String("next_suite", s.name))
			break
		}

		suiteLogger := logger.With(
			zap.String("suite", s.name),
			zap.String("run_id", runid.New(s.name)))
		suiteLogger.Info("Suite starting")
		suiteStart := time.Now()

		err := runSuite(ctx, h, s)
		collector.RecordScenario(s.name, err)
		collector.SetPendingRequests(h.Client.PendingRequests())
		interceptor := h.InstallInterceptor()
		if rec, ok := interceptor.Record(); ok {
			collector.RecordTransferBytes(rec.BytesSent)
		}
		interceptor.Reset()

		if err != nil {
			summary.failed++
			suiteLogger.Error("Suite failed",
				zap.Duration("elapsed", time.Since(suiteStart)),
				zap.Error(err))
			continue
		}
		summary.passed++
		suiteLogger.Info("Suite passed",
			zap.Duration("elapsed", time.Since(suiteStart)))
	}

	summary.elapsed = time.Since(start)
	return summary
}

func runSuite(ctx context.Context, h *harness.Harness, s suite) error {
	for i, scenario := range s.build(h) {
		if err := scenario(ctx); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// freshUser returns registration params with a unique login.
func freshUser() restclient.CreateUserParams {
	id := uuid.NewString()[:8]
	return restclient.CreateUserParams{
		Login:     "driver-" + id,
		Email:     "driver-" + id + "@example.com",
		FirstName: "Driver",
		LastName:  id,
		Password:  "passwd-" + id,
	}
}

func authSuite(h *harness.Harness) []flow.Scenario {
	user := freshUser()
	return []flow.Scenario{
		scenarios.CreateUser(h, user),
		scenarios.Logout(h),
		scenarios.Login(h, user.Login, user.Password, user.FirstName+" "+user.LastName),
		scenarios.Logout(h),
	}
}

func resourcesSuite(h *harness.Harness) []flow.Scenario {
	user := freshUser()
	var coll restclient.Collection
	var folder restclient.Folder
	return []flow.Scenario{
		scenarios.CreateUser(h, user),
		scenarios.CreateCollection(h, "coll-"+user.LastName, "driver collection", false, &coll),
		// ID is resolved when the previous scenario has run.
		deferred(func() flow.Scenario {
			return scenarios.CreateFolder(h, "collection", coll.ID, "folder-"+user.LastName, &folder)
		}),
		deferred(func() flow.Scenario {
			return scenarios.OpenFolder(h, folder.ID, nil)
		}),
		deferred(func() flow.Scenario {
			return scenarios.SetAccess(h, "collection", coll.ID, true)
		}),
	}
}

func metadataSuite(h *harness.Harness) []flow.Scenario {
	user := freshUser()
	var coll restclient.Collection
	var folder restclient.Folder
	var item restclient.Item

	return []flow.Scenario{
		scenarios.CreateUser(h, user),
		scenarios.CreateCollection(h, "coll-"+user.LastName, "driver collection", false, &coll),
		deferred(func() flow.Scenario {
			return scenarios.CreateFolder(h, "collection", coll.ID, "folder-"+user.LastName, &folder)
		}),
		func(ctx context.Context) error {
			created, err := h.Client.CreateItem(ctx, folder.ID, "item-"+user.LastName)
			if err != nil {
				return err
			}
			item = *created
			return nil
		},
		deferred(func() flow.Scenario { return scenarios.AddMetadata(h, item.ID, "color", "red") }),
		deferred(func() flow.Scenario { return scenarios.AddDuplicateMetadata(h, item.ID, "color", "blue") }),
		deferred(func() flow.Scenario { return scenarios.EditMetadata(h, item.ID, "color", "green") }),
		deferred(func() flow.Scenario { return scenarios.DeleteMetadata(h, item.ID, "color") }),
	}
}

func uploadSuite(h *harness.Harness) []flow.Scenario {
	user := freshUser()
	var coll restclient.Collection
	var folder restclient.Folder

	return []flow.Scenario{
		scenarios.CreateUser(h, user),
		scenarios.CreateCollection(h, "coll-"+user.LastName, "driver collection", false, &coll),
		deferred(func() flow.Scenario {
			return scenarios.CreateFolder(h, "collection", coll.ID, "folder-"+user.LastName, &folder)
		}),
		deferred(func() flow.Scenario {
			return scenarios.UploadFile(h, scenarios.UploadSpec{
				FolderID:  folder.ID,
				Name:      "payload-" + user.LastName + ".bin",
				Size:      1 << 20,
				ChunkSize: 256 << 10,
				Source:    transfer.DashSource{},
			}, nil)
		}),
		deferred(func() flow.Scenario {
			return func(ctx context.Context) error {
				path := filepath.Join(os.TempDir(), "uidriver-form-"+user.LastName+".bin")
				if err := os.WriteFile(path, bytes.Repeat([]byte("-"), 64<<10), 0o600); err != nil {
					return fmt.Errorf("writing form upload payload: %w", err)
				}
				defer os.Remove(path)
				return scenarios.UploadThroughForm(h, folder.ID, path, nil)(ctx)
			}
		}),
	}
}

func uploadResumeSuite(h *harness.Harness) []flow.Scenario {
	user := freshUser()
	var coll restclient.Collection
	var folder restclient.Folder

	return []flow.Scenario{
		scenarios.CreateUser(h, user),
		scenarios.CreateCollection(h, "coll-"+user.LastName, "driver collection", false, &coll),
		deferred(func() flow.Scenario {
			return scenarios.CreateFolder(h, "collection", coll.ID, "folder-"+user.LastName, &folder)
		}),
		deferred(func() flow.Scenario {
			return scenarios.ResumeInterruptedUpload(h, scenarios.UploadSpec{
				FolderID:  folder.ID,
				Name:      "resume-" + user.LastName + ".bin",
				Size:      512 << 10,
				ChunkSize: 128 << 10,
				Source:    transfer.DashSource{},
			}, nil)
		}),
	}
}

// deferred delays building a scenario until it runs, so it can read outputs
// written by earlier scenarios in the same suite.
func deferred(build func() flow.Scenario) flow.Scenario {
	return func(ctx context.Context) error {
		return build()(ctx)
	}
}
