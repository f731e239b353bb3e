package scenarios

import (
	"context"
	"strings"

	"github.com/probelab/uidriver/pkg/flow"
	"github.com/probelab/uidriver/pkg/harness"
)

// AddMetadata adds a new metadata key to an item and verifies it appears.
func AddMetadata(h *harness.Harness, itemID, key string, value interface{}) flow.Scenario {
	r := h.NewFlow()

	r.Action("add metadata field", func(ctx context.Context) error {
		_, err := h.Client.AddMetadataField(ctx, itemID, key, value)
		return err
	})
	r.Wait("metadata requests to finish", restQuiet(h))
	r.Wait("metadata key to appear", func(ctx context.Context) (bool, error) {
		item, err := h.Client.GetItem(ctx, itemID)
		if err != nil {
			return false, err
		}
		_, ok := item.Meta[key]
		return ok, nil
	})

	return named("add-metadata", r.Scenario())
}

// AddDuplicateMetadata attempts to add a key that already exists and
// verifies the rejection names the key and leaves the entry count alone.
func AddDuplicateMetadata(h *harness.Harness, itemID, key string, value interface{}) flow.Scenario {
	r := h.NewFlow()

	var countBefore int

	r.Action("count existing entries", func(ctx context.Context) error {
		item, err := h.Client.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		countBefore = len(item.Meta)
		if _, ok := item.Meta[key]; !ok {
			return &flow.AssertionError{What: "precondition: key present", Expected: key, Actual: "<missing>"}
		}
		return nil
	})
	r.Action("attempt duplicate add", func(ctx context.Context) error {
		_, err := h.Client.AddMetadataField(ctx, itemID, key, value)
		if err == nil {
			return &flow.AssertionError{What: "duplicate key rejection", Expected: "error", Actual: "success"}
		}
		if !strings.Contains(err.Error(), key) {
			return &flow.AssertionError{What: "rejection names the key", Expected: key, Actual: err.Error()}
		}
		return nil
	})
	r.Wait("metadata requests to finish", restQuiet(h))
	r.Action("verify entry count unchanged", func(ctx context.Context) error {
		item, err := h.Client.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		return flow.Expect("metadata entry count", countBefore, len(item.Meta))
	})

	return named("add-duplicate-metadata", r.Scenario())
}

// EditMetadata overwrites an existing key's value and verifies the change.
func EditMetadata(h *harness.Harness, itemID, key string, value interface{}) flow.Scenario {
	r := h.NewFlow()

	r.Action("overwrite metadata value", func(ctx context.Context) error {
		_, err := h.Client.SetMetadata(ctx, itemID, map[string]interface{}{key: value})
		return err
	})
	r.Wait("metadata requests to finish", restQuiet(h))
	r.Action("verify new value", func(ctx context.Context) error {
		item, err := h.Client.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		return flow.Expect("metadata value for "+key, value, item.Meta[key])
	})

	return named("edit-metadata", r.Scenario())
}

// DeleteMetadata removes a key and verifies it is gone.
func DeleteMetadata(h *harness.Harness, itemID, key string) flow.Scenario {
	r := h.NewFlow()

	r.Action("delete metadata key", func(ctx context.Context) error {
		_, err := h.Client.DeleteMetadataField(ctx, itemID, key)
		return err
	})
	r.Wait("metadata requests to finish", restQuiet(h))
	r.Wait("metadata key to disappear", func(ctx context.Context) (bool, error) {
		item, err := h.Client.GetItem(ctx, itemID)
		if err != nil {
			return false, err
		}
		_, ok := item.Meta[key]
		return !ok, nil
	})

	return named("delete-metadata", r.Scenario())
}
