// Package restclient is the harness's client for the application's REST API:
// authentication, resource CRUD, metadata editing, and chunked uploads. It
// tracks in-flight requests so wait predicates can poll for REST quiescence.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/probelab/uidriver/pkg/transfer"
)

// TokenHeader carries the session token on authenticated requests.
const TokenHeader = "Girder-Token"

// Client talks to one application deployment. Safe for use from a single
// scenario goroutine plus wait predicates reading the pending counter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.RWMutex
	token string

	pending int64
}

// NewClient creates a REST client for the API rooted at baseURL (e.g.
// "http://localhost:8080/api/v1").
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

// PendingRequests reports the number of REST calls currently in flight. The
// standard quiescence predicate for wait steps.
func (c *Client) PendingRequests() int64 {
	return atomic.LoadInt64(&c.pending)
}

// Token returns the current session token, empty when logged out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken overrides the session token. Used by scenarios that log in
// through the browser rather than the API.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// do executes one API call, maintaining the pending counter for the full
// request lifetime and decoding either the success payload or an APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, headers map[string]string, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("restclient: creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set(TokenHeader, tok)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	atomic.AddInt64(&c.pending, 1)
	defer atomic.AddInt64(&c.pending, -1)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("REST call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("restclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("restclient: reading response: %w", err)
	}

	c.logger.Debug("REST call completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("restclient: decoding %s %s response: %w", method, path, err)
		}
	}
	return nil
}

type authResponse struct {
	User      *User `json:"user"`
	AuthToken struct {
		Token string `json:"token"`
	} `json:"authToken"`
}

// Authenticate logs in with basic credentials and stores the session token.
func (c *Client) Authenticate(ctx context.Context, login, password string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user/authentication", nil)
	if err != nil {
		return nil, fmt.Errorf("restclient: creating auth request: %w", err)
	}
	req.SetBasicAuth(login, password)

	atomic.AddInt64(&c.pending, 1)
	defer atomic.AddInt64(&c.pending, -1)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("restclient: authenticating: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("restclient: reading auth response: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil {
			apiErr.Message = string(respBody)
		}
		return nil, apiErr
	}

	var auth authResponse
	if err := json.Unmarshal(respBody, &auth); err != nil {
		return nil, fmt.Errorf("restclient: decoding auth response: %w", err)
	}

	c.SetToken(auth.AuthToken.Token)
	c.logger.Debug("Authenticated", zap.String("login", login))
	return auth.User, nil
}

// Logout deletes the session and clears the stored token.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodDelete, "/user/authentication", nil, nil, "", nil, nil)
	if err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// CurrentUser returns the logged-in user, or nil when anonymous.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user *User
	if err := c.do(ctx, http.MethodGet, "/user/me", nil, nil, "", nil, &user); err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUserParams are the registration fields.
type CreateUserParams struct {
	Login     string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// CreateUser registers a new user. The server logs the new user in, so the
// returned token is stored on the client.
func (c *Client) CreateUser(ctx context.Context, p CreateUserParams) (*User, error) {
	q := url.Values{}
	q.Set("login", p.Login)
	q.Set("email", p.Email)
	q.Set("firstName", p.FirstName)
	q.Set("lastName", p.LastName)
	q.Set("password", p.Password)

	var auth authResponse
	if err := c.do(ctx, http.MethodPost, "/user", q, nil, "", nil, &auth); err != nil {
		return nil, err
	}
	if auth.AuthToken.Token != "" {
		c.SetToken(auth.AuthToken.Token)
	}
	return auth.User, nil
}

// CreateCollection creates a top-level collection.
func (c *Client) CreateCollection(ctx context.Context, name, description string, public bool) (*Collection, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("description", description)
	q.Set("public", strconv.FormatBool(public))

	var coll Collection
	if err := c.do(ctx, http.MethodPost, "/collection", q, nil, "", nil, &coll); err != nil {
		return nil, err
	}
	return &coll, nil
}

// CreateFolder creates a folder under the given parent.
func (c *Client) CreateFolder(ctx context.Context, parentType, parentID, name string) (*Folder, error) {
	q := url.Values{}
	q.Set("parentType", parentType)
	q.Set("parentId", parentID)
	q.Set("name", name)

	var folder Folder
	if err := c.do(ctx, http.MethodPost, "/folder", q, nil, "", nil, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// ListFolders lists folders under a parent.
func (c *Client) ListFolders(ctx context.Context, parentType, parentID string) ([]Folder, error) {
	q := url.Values{}
	q.Set("parentType", parentType)
	q.Set("parentId", parentID)

	var folders []Folder
	if err := c.do(ctx, http.MethodGet, "/folder", q, nil, "", nil, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// CreateItem creates an item in a folder.
func (c *Client) CreateItem(ctx context.Context, folderID, name string) (*Item, error) {
	q := url.Values{}
	q.Set("folderId", folderID)
	q.Set("name", name)

	var item Item
	if err := c.do(ctx, http.MethodPost, "/item", q, nil, "", nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetCollection fetches one collection. Access control applies: a private
// collection is only readable by its owner.
func (c *Client) GetCollection(ctx context.Context, collectionID string) (*Collection, error) {
	var coll Collection
	if err := c.do(ctx, http.MethodGet, "/collection/"+collectionID, nil, nil, "", nil, &coll); err != nil {
		return nil, err
	}
	return &coll, nil
}

// GetItem fetches one item, including metadata.
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	var item Item
	if err := c.do(ctx, http.MethodGet, "/item/"+itemID, nil, nil, "", nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems lists the items in a folder.
func (c *Client) ListItems(ctx context.Context, folderID string) ([]Item, error) {
	q := url.Values{}
	q.Set("folderId", folderID)

	var items []Item
	if err := c.do(ctx, http.MethodGet, "/item", q, nil, "", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SetMetadata merges the given fields into the item's metadata. A nil value
// removes the key, matching the application's merge semantics.
func (c *Client) SetMetadata(ctx context.Context, itemID string, meta map[string]interface{}) (*Item, error) {
	body, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("restclient: encoding metadata: %w", err)
	}

	var item Item
	if err := c.do(ctx, http.MethodPut, "/item/"+itemID+"/metadata", nil, bytes.NewReader(body), "application/json", nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// AddMetadataField adds a single new metadata key. Duplicate keys are
// rejected here, the way the application's edit widget rejects them, so the
// server never sees a silently-merging duplicate.
func (c *Client) AddMetadataField(ctx context.Context, itemID, key string, value interface{}) (*Item, error) {
	item, err := c.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if _, exists := item.Meta[key]; exists {
		return nil, fmt.Errorf("restclient: metadata key already exists: %s", key)
	}
	return c.SetMetadata(ctx, itemID, map[string]interface{}{key: value})
}

// DeleteMetadataField removes one metadata key.
func (c *Client) DeleteMetadataField(ctx context.Context, itemID, key string) (*Item, error) {
	return c.SetMetadata(ctx, itemID, map[string]interface{}{key: nil})
}

// SetAccess flips a resource between public and private. resourceType is
// "collection" or "folder".
func (c *Client) SetAccess(ctx context.Context, resourceType, id string, public bool) error {
	q := url.Values{}
	q.Set("public", strconv.FormatBool(public))
	return c.do(ctx, http.MethodPut, "/"+resourceType+"/"+id+"/access", q, nil, "", nil, nil)
}

// InitUpload starts a chunked upload and returns its token.
func (c *Client) InitUpload(ctx context.Context, parentType, parentID, name string, size int64, mimeType string) (*Upload, error) {
	q := url.Values{}
	q.Set("parentType", parentType)
	q.Set("parentId", parentID)
	q.Set("name", name)
	q.Set("size", strconv.FormatInt(size, 10))
	q.Set("mimeType", mimeType)

	var up Upload
	if err := c.do(ctx, http.MethodPost, "/file", q, nil, "", nil, &up); err != nil {
		return nil, err
	}
	return &up, nil
}

// UploadChunk sends one chunk. Multipart chunks go as a form upload with
// offset and uploadId fields; raw chunks carry the body directly with the
// offset in a header. Implements transfer.Uploader.
func (c *Client) UploadChunk(ctx context.Context, req *transfer.ChunkRequest) (*transfer.ChunkResponse, error) {
	var body io.Reader
	var contentType string
	headers := req.Headers

	if req.Multipart {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if err := w.WriteField("offset", strconv.FormatInt(req.Offset, 10)); err != nil {
			return nil, fmt.Errorf("restclient: building multipart chunk: %w", err)
		}
		if err := w.WriteField("uploadId", req.UploadID); err != nil {
			return nil, fmt.Errorf("restclient: building multipart chunk: %w", err)
		}
		part, err := w.CreateFormFile("chunk", req.Name)
		if err != nil {
			return nil, fmt.Errorf("restclient: building multipart chunk: %w", err)
		}
		if _, err := part.Write(req.Body); err != nil {
			return nil, fmt.Errorf("restclient: building multipart chunk: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("restclient: building multipart chunk: %w", err)
		}
		body = &buf
		contentType = w.FormDataContentType()
	} else {
		body = bytes.NewReader(req.Body)
		contentType = "application/octet-stream"
		if headers == nil {
			headers = make(map[string]string, 2)
		}
		if _, ok := headers[transfer.OffsetHeader]; !ok {
			headers[transfer.OffsetHeader] = strconv.FormatInt(req.Offset, 10)
		}
		headers["X-Upload-Id"] = req.UploadID
	}

	var resp transfer.ChunkResponse
	if err := c.do(ctx, http.MethodPost, "/file/chunk", nil, body, contentType, headers, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadOffset asks the server how many bytes it has for an upload, the
// resume primitive after a rejected chunk.
func (c *Client) UploadOffset(ctx context.Context, uploadID string) (int64, error) {
	q := url.Values{}
	q.Set("uploadId", uploadID)

	var out struct {
		Offset int64 `json:"offset"`
	}
	if err := c.do(ctx, http.MethodGet, "/file/offset", q, nil, "", nil, &out); err != nil {
		return 0, err
	}
	return out.Offset, nil
}

// GetFile fetches a file record.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var f File
	if err := c.do(ctx, http.MethodGet, "/file/"+fileID, nil, nil, "", nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFiles lists the files in an item.
func (c *Client) ListFiles(ctx context.Context, itemID string) ([]File, error) {
	var files []File
	if err := c.do(ctx, http.MethodGet, "/item/"+itemID+"/files", nil, nil, "", nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// Download fetches file content starting at the given offset.
func (c *Client) Download(ctx context.Context, fileID string, offset int64) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/file/%s/download", c.baseURL, fileID)
	if offset > 0 {
		endpoint += "?offset=" + strconv.FormatInt(offset, 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("restclient: creating download request: %w", err)
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set(TokenHeader, tok)
	}

	atomic.AddInt64(&c.pending, 1)
	defer atomic.AddInt64(&c.pending, -1)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("restclient: downloading file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("restclient: reading download: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil {
			apiErr.Message = string(data)
		}
		return nil, apiErr
	}
	return data, nil
}
