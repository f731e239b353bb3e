package fixture

// Documents stored by the fixture. JSON field names mirror the application's
// API so the REST client decodes responses directly. Fields the API must not
// expose (credentials, ownership) live on the stored wrapper types below.

type userDoc struct {
	ID        string `json:"_id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Admin     bool   `json:"admin"`
}

type collectionDoc struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

type folderDoc struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	ParentType string `json:"parentType"`
	ParentID   string `json:"parentId"`
	Public     bool   `json:"public"`
}

type itemDoc struct {
	ID       string                 `json:"_id"`
	Name     string                 `json:"name"`
	FolderID string                 `json:"folderId"`
	Meta     map[string]interface{} `json:"meta"`
}

type fileDoc struct {
	ID     string `json:"_id"`
	ItemID string `json:"itemId"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

type uploadDoc struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	ParentType string `json:"parentType"`
	ParentID   string `json:"parentId"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
	Received   int64  `json:"received"`
}

// Stored wrappers carry server-only fields alongside the API document.
// The fixture only ever holds throwaway test credentials, so passwords are
// kept as-is inside the embedded store.

type storedUser struct {
	Doc      userDoc `json:"doc"`
	Password string  `json:"password"`
}

type storedCollection struct {
	Doc     collectionDoc `json:"doc"`
	OwnerID string        `json:"ownerId"`
}

type storedFolder struct {
	Doc     folderDoc `json:"doc"`
	OwnerID string    `json:"ownerId"`
}

type storedItem struct {
	Doc     itemDoc `json:"doc"`
	OwnerID string  `json:"ownerId"`
}

type storedUpload struct {
	Doc    uploadDoc `json:"doc"`
	UserID string    `json:"userId"`
}

func userKey(id string) string       { return "user:" + id }
func loginKey(login string) string   { return "login:" + login }
func tokenKey(token string) string   { return "token:" + token }
func collectionKey(id string) string { return "collection:" + id }
func folderKey(id string) string     { return "folder:" + id }
func itemKey(id string) string       { return "item:" + id }
func fileKey(id string) string       { return "file:" + id }
func uploadKey(id string) string     { return "upload:" + id }
func uploadDataKey(id string) string { return "uploaddata:" + id }

func childFoldersKey(parentType, parentID string) string {
	return "folders:" + parentType + ":" + parentID
}
func folderItemsKey(folderID string) string { return "items:" + folderID }
func itemFilesKey(itemID string) string     { return "files:" + itemID }
