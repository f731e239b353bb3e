package restclient

import (
	"errors"
	"fmt"
)

// User is the application's user document, reduced to the fields the
// scenarios assert on.
type User struct {
	ID        string `json:"_id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Admin     bool   `json:"admin"`
}

// DisplayName matches the name the application shows in its header widget.
func (u *User) DisplayName() string {
	return u.FirstName + " " + u.LastName
}

// Collection is a top-level grouping of folders.
type Collection struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

// Folder lives under a user, collection, or another folder.
type Folder struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	ParentType string `json:"parentType"`
	ParentID   string `json:"parentId"`
	Public     bool   `json:"public"`
}

// Item is a leaf container holding files and metadata.
type Item struct {
	ID       string                 `json:"_id"`
	Name     string                 `json:"name"`
	FolderID string                 `json:"folderId"`
	Meta     map[string]interface{} `json:"meta"`
}

// File is a stored file record.
type File struct {
	ID     string `json:"_id"`
	ItemID string `json:"itemId"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

// Upload is an in-progress chunked upload token.
type Upload struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Received int64  `json:"received"`
}

// APIError is a structured error response from the application.
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Type, e.Message)
}

// AsAPIError unwraps an APIError from an error chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
