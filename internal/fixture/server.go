// Package fixture is an in-process slice of the data-management application
// the scenario library drives: token auth, collections/folders/items, item
// metadata with merge semantics, and resumable chunked uploads with strict
// offset accounting. It exists to give scenarios and acceptance suites a
// real HTTP target without deploying the product.
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1"

// tokenHeader matches the header the REST client sends.
const tokenHeader = "Girder-Token"

// offsetHeader carries the chunk offset on raw (non-multipart) uploads.
const offsetHeader = "X-Upload-Offset"

// Server is the fixture application server.
type Server struct {
	store  *Store
	logger *zap.Logger
	srv    *fasthttp.Server
	ln     net.Listener
}

// NewServer creates a fixture server over the given store.
func NewServer(store *Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{store: store, logger: logger}
	s.srv = &fasthttp.Server{
		Handler:            s.handleRequest,
		Name:               "uidriver-fixture",
		MaxRequestBodySize: 64 << 20,
	}
	return s
}

// Start listens on addr (use "127.0.0.1:0" for an ephemeral port) and serves
// in a background goroutine.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("fixture: listening on %s: %w", addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil {
			s.logger.Debug("Fixture server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("Fixture server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// BaseURL returns the root URL of the running server.
func (s *Server) BaseURL() string {
	return "http://" + s.ln.Addr().String()
}

// APIURL returns the REST API root of the running server.
func (s *Server) APIURL() string {
	return s.BaseURL() + apiPrefix
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

func (s *Server) handleRequest(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	s.logger.Debug("Fixture request",
		zap.String("method", method),
		zap.String("path", path))

	switch {
	case path == "/" && method == fasthttp.MethodGet:
		s.servePage(ctx)
	case path == "/health" && method == fasthttp.MethodGet:
		s.respondJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
	case strings.HasPrefix(path, apiPrefix):
		s.handleAPI(ctx, method, strings.TrimPrefix(path, apiPrefix))
	default:
		s.respondError(ctx, fasthttp.StatusNotFound, "rest", "Path not found: "+path)
	}
}

func (s *Server) handleAPI(ctx *fasthttp.RequestCtx, method, path string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case match(parts, "user") && method == fasthttp.MethodPost:
		s.createUser(ctx)
	case match(parts, "user", "me") && method == fasthttp.MethodGet:
		s.currentUserHandler(ctx)
	case match(parts, "user", "authentication") && method == fasthttp.MethodGet:
		s.login(ctx)
	case match(parts, "user", "authentication") && method == fasthttp.MethodDelete:
		s.logout(ctx)
	case match(parts, "collection") && method == fasthttp.MethodPost:
		s.createCollection(ctx)
	case len(parts) == 2 && parts[0] == "collection" && method == fasthttp.MethodGet:
		s.getCollection(ctx, parts[1])
	case len(parts) == 3 && parts[0] == "collection" && parts[2] == "access" && method == fasthttp.MethodPut:
		s.setCollectionAccess(ctx, parts[1])
	case match(parts, "folder") && method == fasthttp.MethodPost:
		s.createFolder(ctx)
	case match(parts, "folder") && method == fasthttp.MethodGet:
		s.listFolders(ctx)
	case len(parts) == 3 && parts[0] == "folder" && parts[2] == "access" && method == fasthttp.MethodPut:
		s.setFolderAccess(ctx, parts[1])
	case match(parts, "item") && method == fasthttp.MethodPost:
		s.createItem(ctx)
	case match(parts, "item") && method == fasthttp.MethodGet:
		s.listItems(ctx)
	case len(parts) == 2 && parts[0] == "item" && method == fasthttp.MethodGet:
		s.getItem(ctx, parts[1])
	case len(parts) == 3 && parts[0] == "item" && parts[2] == "metadata" && method == fasthttp.MethodPut:
		s.setItemMetadata(ctx, parts[1])
	case len(parts) == 3 && parts[0] == "item" && parts[2] == "files" && method == fasthttp.MethodGet:
		s.listItemFiles(ctx, parts[1])
	case match(parts, "file") && method == fasthttp.MethodPost:
		s.initUpload(ctx)
	case match(parts, "file", "chunk") && method == fasthttp.MethodPost:
		s.uploadChunk(ctx)
	case match(parts, "file", "offset") && method == fasthttp.MethodGet:
		s.uploadOffset(ctx)
	case len(parts) == 2 && parts[0] == "file" && method == fasthttp.MethodGet:
		s.getFile(ctx, parts[1])
	case len(parts) == 3 && parts[0] == "file" && parts[2] == "download" && method == fasthttp.MethodGet:
		s.downloadFile(ctx, parts[1])
	default:
		s.respondError(ctx, fasthttp.StatusNotFound, "rest", "No such endpoint: "+path)
	}
}

func match(parts []string, want ...string) bool {
	if len(parts) != len(want) {
		return false
	}
	for i := range want {
		if parts[i] != want[i] {
			return false
		}
	}
	return true
}

// authedUser resolves the request's user from the token header. Returns nil
// without error for anonymous requests.
func (s *Server) authedUser(ctx *fasthttp.RequestCtx) (*storedUser, error) {
	token := string(ctx.Request.Header.Peek(tokenHeader))
	if token == "" {
		return nil, nil
	}
	userID, err := s.store.GetString(ctx, tokenKey(token))
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var user storedUser
	if err := s.store.GetJSON(ctx, userKey(userID), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// requireUser resolves the user or writes a 401.
func (s *Server) requireUser(ctx *fasthttp.RequestCtx) *storedUser {
	user, err := s.authedUser(ctx)
	if err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return nil
	}
	if user == nil {
		s.respondError(ctx, fasthttp.StatusUnauthorized, "access", "You must be logged in.")
		return nil
	}
	return user
}

func (s *Server) createUser(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()
	login := string(args.Peek("login"))
	email := string(args.Peek("email"))
	firstName := string(args.Peek("firstName"))
	lastName := string(args.Peek("lastName"))
	password := string(args.Peek("password"))

	if login == "" || password == "" || email == "" {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Login, email, and password are required.")
		return
	}
	if _, err := s.store.GetString(ctx, loginKey(login)); err == nil {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "That login is already registered.")
		return
	}

	user := storedUser{
		Doc: userDoc{
			ID:        uuid.New().String(),
			Login:     login,
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
		},
		Password: password,
	}
	if err := s.store.PutJSON(ctx, userKey(user.Doc.ID), &user); err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}
	if err := s.store.SetString(ctx, loginKey(login), user.Doc.ID); err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}

	// Registration logs the new user in.
	token, err := s.issueToken(ctx, user.Doc.ID)
	if err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}

	s.logger.Debug("User created", zap.String("login", login))
	s.respondJSON(ctx, fasthttp.StatusOK, authPayload(&user.Doc, token))
}

func (s *Server) issueToken(ctx context.Context, userID string) (string, error) {
	token := uuid.New().String()
	if err := s.store.SetString(ctx, tokenKey(token), userID); err != nil {
		return "", err
	}
	return token, nil
}

func authPayload(user *userDoc, token string) map[string]interface{} {
	return map[string]interface{}{
		"user": user,
		"authToken": map[string]string{
			"token": token,
		},
	}
}

func (s *Server) login(ctx *fasthttp.RequestCtx) {
	login, password, ok := basicAuth(ctx)
	if !ok {
		s.respondError(ctx, fasthttp.StatusUnauthorized, "access", "Login credentials required.")
		return
	}

	userID, err := s.store.GetString(ctx, loginKey(login))
	if err != nil {
		s.respondError(ctx, fasthttp.StatusUnauthorized, "access", "Login failed.")
		return
	}
	var user storedUser
	if err := s.store.GetJSON(ctx, userKey(userID), &user); err != nil {
		s.respondError(ctx, fasthttp.StatusUnauthorized, "access", "Login failed.")
		return
	}
	if user.Password != password {
		s.respondError(ctx, fasthttp.StatusUnauthorized, "access", "Login failed.")
		return
	}

	token, err := s.issueToken(ctx, userID)
	if err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.respondJSON(ctx, fasthttp.StatusOK, authPayload(&user.Doc, token))
}

func (s *Server) logout(ctx *fasthttp.RequestCtx) {
	token := string(ctx.Request.Header.Peek(tokenHeader))
	if token != "" {
		if err := s.store.Delete(ctx, tokenKey(token)); err != nil {
			s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
			return
		}
	}
	s.respondJSON(ctx, fasthttp.StatusOK, map[string]string{"message": "Logged out."})
}

func (s *Server) currentUserHandler(ctx *fasthttp.RequestCtx) {
	user, err := s.authedUser(ctx)
	if err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}
	if user == nil {
		s.respondJSON(ctx, fasthttp.StatusOK, nil)
		return
	}
	s.respondJSON(ctx, fasthttp.StatusOK, &user.Doc)
}

func (s *Server) createCollection(ctx *fasthttp.RequestCtx) {
	user := s.requireUser(ctx)
	if user == nil {
		return
	}

	args := ctx.QueryArgs()
	name := string(args.Peek("name"))
	if name == "" {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Collection name must not be empty.")
		return
	}
	public, _ := strconv.ParseBool(string(args.Peek("public")))

	coll := storedCollection{
		Doc: collectionDoc{
			ID:          uuid.New().String(),
			Name:        name,
			Description: string(args.Peek("description")),
			Public:      public,
		},
		OwnerID: user.Doc.ID,
	}
	if err := s.store.PutJSON(ctx, collectionKey(coll.Doc.ID), &coll); err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.respondJSON(ctx, fasthttp.StatusOK, &coll.Doc)
}

func (s *Server) getCollection(ctx *fasthttp.RequestCtx, id string) {
	var coll storedCollection
	if err := s.store.GetJSON(ctx, collectionKey(id), &coll); err != nil {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid collection ID: "+id)
		return
	}

	if !coll.Doc.Public {
		user, err := s.authedUser(ctx)
		if err != nil {
			s.respondError(ctx, fasthttp.StatusUnauthorized, "access", err.Error())
			return
		}
		if user == nil || user.Doc.ID != coll.OwnerID {
			s.respondError(ctx, fasthttp.StatusForbidden, "access", "Read access denied for collection.")
			return
		}
	}
	s.respondJSON(ctx, fasthttp.StatusOK, &coll.Doc)
}

func (s *Server) setCollectionAccess(ctx *fasthttp.RequestCtx, id string) {
	user := s.requireUser(ctx)
	if user == nil {
		return
	}

	var coll storedCollection
	if err := s.store.GetJSON(ctx, collectionKey(id), &coll); err != nil {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid collection ID: "+id)
		return
	}
	if coll.OwnerID != user.Doc.ID {
		s.respondError(ctx, fasthttp.StatusForbidden, "access", "Admin access denied for collection.")
		return
	}

	public, _ := strconv.ParseBool(string(ctx.QueryArgs().Peek("public")))
	coll.Doc.Public = public
	if err := s.store.PutJSON(ctx, collectionKey(id), &coll); err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.respondJSON(ctx, fasthttp.StatusOK, &coll.Doc)
}

func (s *Server) createFolder(ctx *fasthttp.RequestCtx) {
	user := s.requireUser(ctx)
	if user == nil {
		return
	}

	args := ctx.QueryArgs()
	name := string(args.Peek("name"))
	parentType := string(args.Peek("parentType"))
	parentID := string(args.Peek("parentId"))
	if name == "" {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Folder name must not be empty.")
		return
	}
	if parentType != "collection" && parentType != "folder" && parentType != "user" {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid parentType: "+parentType)
		return
	}

	folder := storedFolder{
		Doc: folderDoc{
			ID:         uuid.New().String(),
			Name:       name,
			ParentType: parentType,
			ParentID:   parentID,
		},
		OwnerID: user.Doc.ID,
	}
	if err := s.store.PutJSON(ctx, folderKey(folder.Doc.ID), &folder); err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}
	if err := s.store.AddToSet(ctx, childFoldersKey(parentType, parentID), folder.Doc.ID); err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.respondJSON(ctx, fasthttp.StatusOK, &folder.Doc)
}

func (s *Server) listFolders(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()
	parentType := string(args.Peek("parentType"))
	parentID := string(args.Peek("parentId"))

	ids, err := s.store.SetMembers(ctx, childFoldersKey(parentType, parentID))
	if err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}

	folders := make([]folderDoc, 0, len(ids))
	for _, id := range ids {
		var f storedFolder
		if err := s.store.GetJSON(ctx, folderKey(id), &f); err != nil {
			continue
		}
		folders = append(folders, f.Doc)
	}
	s.respondJSON(ctx, fasthttp.StatusOK, folders)
}

func (s *Server) setFolderAccess(ctx *fasthttp.RequestCtx, id string) {
	user := s.requireUser(ctx)
	if user == nil {
		return
	}

	var folder storedFolder
	if err := s.store.GetJSON(ctx, folderKey(id), &folder); err != nil {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid folder ID: "+id)
		return
	}
	if folder.OwnerID != user.Doc.ID {
		s.respondError(ctx, fasthttp.StatusForbidden, "access", "Admin access denied for folder.")
		return
	}

	public, _ := strconv.ParseBool(string(ctx.QueryArgs().Peek("public")))
	folder.Doc.Public = public
	if err := s.store.PutJSON(ctx, folderKey(id), &folder); err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.respondJSON(ctx, fasthttp.StatusOK, &folder.Doc)
}

func (s *Server) createItem(ctx *fasthttp.RequestCtx) {
	user := s.requireUser(ctx)
	if user == nil {
		return
	}

	args := ctx.QueryArgs()
	folderID := string(args.Peek("folderId"))
	name := string(args.Peek("name"))
	if name == "" || folderID == "" {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Item name and folderId are required.")
		return
	}

	item, err := s.insertItem(ctx, folderID, name, user.Doc.ID)
	if err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.respondJSON(ctx, fasthttp.StatusOK, &item.Doc)
}

func (s *Server) insertItem(ctx context.Context, folderID, name, ownerID string) (*storedItem, error) {
	item := storedItem{
		Doc: itemDoc{
			ID:       uuid.New().String(),
			Name:     name,
			FolderID: folderID,
			Meta:     map[string]interface{}{},
		},
		OwnerID: ownerID,
	}
	if err := s.store.PutJSON(ctx, itemKey(item.Doc.ID), &item); err != nil {
		return nil, err
	}
	if err := s.store.AddToSet(ctx, folderItemsKey(folderID), item.Doc.ID); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Server) getItem(ctx *fasthttp.RequestCtx, id string) {
	var item storedItem
	if err := s.store.GetJSON(ctx, itemKey(id), &item); err != nil {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid item ID: "+id)
		return
	}
	s.respondJSON(ctx, fasthttp.StatusOK, &item.Doc)
}

func (s *Server) listItems(ctx *fasthttp.RequestCtx) {
	folderID := string(ctx.QueryArgs().Peek("folderId"))

	ids, err := s.store.SetMembers(ctx, folderItemsKey(folderID))
	if err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}

	items := make([]itemDoc, 0, len(ids))
	for _, id := range ids {
		var it storedItem
		if err := s.store.GetJSON(ctx, itemKey(id), &it); err != nil {
			continue
		}
		items = append(items, it.Doc)
	}
	s.respondJSON(ctx, fasthttp.StatusOK, items)
}

func (s *Server) setItemMetadata(ctx *fasthttp.RequestCtx, id string) {
	user := s.requireUser(ctx)
	if user == nil {
		return
	}

	var item storedItem
	if err := s.store.GetJSON(ctx, itemKey(id), &item); err != nil {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid item ID: "+id)
		return
	}

	var meta map[string]interface{}
	if err := json.Unmarshal(ctx.PostBody(), &meta); err != nil {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid JSON passed in request body.")
		return
	}

	for key := range meta {
		if err := validateMetaKey(key); err != nil {
			s.respondError(ctx, fasthttp.StatusBadRequest, "validation", err.Error())
			return
		}
	}

	// Merge semantics: null values delete keys, the rest overwrite.
	for key, value := range meta {
		if value == nil {
			delete(item.Doc.Meta, key)
		} else {
			item.Doc.Meta[key] = value
		}
	}

	if err := s.store.PutJSON(ctx, itemKey(id), &item); err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.respondJSON(ctx, fasthttp.StatusOK, &item.Doc)
}

func validateMetaKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("Key names must not be empty.")
	}
	if strings.Contains(key, ".") {
		return fmt.Errorf("Invalid key %s: keys must not contain a period.", key)
	}
	if strings.HasPrefix(key, "$") {
		return fmt.Errorf("Invalid key %s: keys must not start with a dollar sign.", key)
	}
	return nil
}

func (s *Server) listItemFiles(ctx *fasthttp.RequestCtx, itemID string) {
	ids, err := s.store.SetMembers(ctx, itemFilesKey(itemID))
	if err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}

	files := make([]fileDoc, 0, len(ids))
	for _, id := range ids {
		var f fileDoc
		if err := s.store.GetJSON(ctx, fileKey(id), &f); err != nil {
			continue
		}
		files = append(files, f)
	}
	s.respondJSON(ctx, fasthttp.StatusOK, files)
}

func (s *Server) getFile(ctx *fasthttp.RequestCtx, id string) {
	var f fileDoc
	if err := s.store.GetJSON(ctx, fileKey(id), &f); err != nil {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid file ID: "+id)
		return
	}
	s.respondJSON(ctx, fasthttp.StatusOK, &f)
}

func (s *Server) downloadFile(ctx *fasthttp.RequestCtx, id string) {
	var f fileDoc
	if err := s.store.GetJSON(ctx, fileKey(id), &f); err != nil {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid file ID: "+id)
		return
	}

	data, err := s.store.GetBytes(ctx, "filedata:"+id)
	if err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}

	offset, _ := strconv.ParseInt(string(ctx.QueryArgs().Peek("offset")), 10, 64)
	if offset < 0 || offset > int64(len(data)) {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid download offset.")
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/octet-stream")
	ctx.SetBody(data[offset:])
}

func basicAuth(ctx *fasthttp.RequestCtx) (string, string, bool) {
	auth := string(ctx.Request.Header.Peek("Authorization"))
	const prefix = "Basic "
	if !strings.HasPrefix(auth, prefix) {
		return "", "", false
	}
	decoded, err := decodeBase64(auth[len(prefix):])
	if err != nil {
		return "", "", false
	}
	login, password, found := strings.Cut(decoded, ":")
	if !found {
		return "", "", false
	}
	return login, password, true
}
