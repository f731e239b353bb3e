package scenarios

import (
	"context"
	"strings"

	"github.com/probelab/uidriver/internal/restclient"
	"github.com/probelab/uidriver/pkg/flow"
	"github.com/probelab/uidriver/pkg/harness"
)

// CreateCollection creates a collection and verifies its access flag. The
// created collection is written to out when non-nil, for chaining into
// later scenarios.
func CreateCollection(h *harness.Harness, name, description string, public bool, out *restclient.Collection) flow.Scenario {
	r := h.NewFlow()

	var created *restclient.Collection

	r.Action("create collection", func(ctx context.Context) error {
		coll, err := h.Client.CreateCollection(ctx, name, description, public)
		if err != nil {
			return err
		}
		created = coll
		return nil
	})
	r.Wait("collection requests to finish", restQuiet(h))
	r.Action("verify collection fields", func(ctx context.Context) error {
		if err := flow.Expect("collection name", name, created.Name); err != nil {
			return err
		}
		if err := flow.Expect("collection public flag", public, created.Public); err != nil {
			return err
		}
		if out != nil {
			*out = *created
		}
		return nil
	})

	return named("create-collection", r.Scenario())
}

// CreateFolder creates a folder under a parent and verifies it shows up in
// the parent's folder listing.
func CreateFolder(h *harness.Harness, parentType, parentID, name string, out *restclient.Folder) flow.Scenario {
	r := h.NewFlow()

	var created *restclient.Folder

	r.Action("create folder", func(ctx context.Context) error {
		folder, err := h.Client.CreateFolder(ctx, parentType, parentID, name)
		if err != nil {
			return err
		}
		created = folder
		return nil
	})
	r.Wait("folder requests to finish", restQuiet(h))
	r.Wait("folder to appear in listing", func(ctx context.Context) (bool, error) {
		folders, err := h.Client.ListFolders(ctx, parentType, parentID)
		if err != nil {
			return false, err
		}
		for _, f := range folders {
			if f.ID == created.ID {
				return true, nil
			}
		}
		return false, nil
	})
	r.Action("expose created folder", func(ctx context.Context) error {
		if out != nil {
			*out = *created
		}
		return nil
	})

	return named("create-folder", r.Scenario())
}

// OpenFolder navigates the browser into a folder's view and waits for the
// folder's item listing to settle. The listed items are written to out when
// non-nil.
func OpenFolder(h *harness.Harness, folderID string, out *[]restclient.Item) flow.Scenario {
	r := h.NewFlow()

	var items []restclient.Item

	r.Action("navigate to folder view", func(ctx context.Context) error {
		return h.Driver.Navigate(ctx, h.BaseURL+"/#folder/"+folderID)
	})
	r.Wait("folder view to load", func(ctx context.Context) (bool, error) {
		url, err := h.Driver.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(url, folderID), nil
	})
	r.Action("list folder items", func(ctx context.Context) error {
		listed, err := h.Client.ListItems(ctx, folderID)
		if err != nil {
			return err
		}
		items = listed
		return nil
	})
	r.Wait("listing requests to finish", restQuiet(h))
	r.Action("expose folder items", func(ctx context.Context) error {
		if out != nil {
			*out = items
		}
		return nil
	})

	return named("open-folder", r.Scenario())
}

// SetAccess toggles a resource between public and private and verifies the
// flag stuck. resourceType is "collection" or "folder".
func SetAccess(h *harness.Harness, resourceType, id string, public bool) flow.Scenario {
	r := h.NewFlow()

	r.Action("set access flag", func(ctx context.Context) error {
		return h.Client.SetAccess(ctx, resourceType, id, public)
	})
	r.Wait("access requests to finish", restQuiet(h))
	if resourceType == "collection" {
		r.Action("verify access flag", func(ctx context.Context) error {
			coll, err := h.Client.GetCollection(ctx, id)
			if err != nil {
				return err
			}
			return flow.Expect("collection public flag", public, coll.Public)
		})
	}

	return named("set-access", r.Scenario())
}
