package fixture

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// initUpload creates an upload token for a chunked transfer.
func (s *Server) initUpload(ctx *fasthttp.RequestCtx) {
	user := s.requireUser(ctx)
	if user == nil {
		return
	}

	args := ctx.QueryArgs()
	name := string(args.Peek("name"))
	parentType := string(args.Peek("parentType"))
	parentID := string(args.Peek("parentId"))
	size, err := strconv.ParseInt(string(args.Peek("size")), 10, 64)
	if err != nil || size <= 0 {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid file size.")
		return
	}
	if name == "" || parentID == "" {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "File name and parentId are required.")
		return
	}
	if parentType != "folder" && parentType != "item" {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid parentType: "+parentType)
		return
	}

	up := storedUpload{
		Doc: uploadDoc{
			ID:         uuid.New().String(),
			Name:       name,
			ParentType: parentType,
			ParentID:   parentID,
			MimeType:   string(args.Peek("mimeType")),
			Size:       size,
		},
		UserID: user.Doc.ID,
	}
	if err := s.store.PutJSON(ctx, uploadKey(up.Doc.ID), &up); err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}

	s.logger.Debug("Upload initialized",
		zap.String("upload_id", up.Doc.ID),
		zap.String("name", name),
		zap.Int64("size", size))
	s.respondJSON(ctx, fasthttp.StatusOK, &up.Doc)
}

// uploadChunk accepts one chunk, multipart or raw. The offset must equal the
// bytes received so far; padded or overlong chunks are rejected without
// advancing the upload, which is exactly what the resume scenarios rely on.
func (s *Server) uploadChunk(ctx *fasthttp.RequestCtx) {
	user := s.requireUser(ctx)
	if user == nil {
		return
	}

	uploadID, offsetRaw, chunk, err := s.parseChunk(ctx)
	if err != nil {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", err.Error())
		return
	}

	var up storedUpload
	if err := s.store.GetJSON(ctx, uploadKey(uploadID), &up); err != nil {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid upload ID: "+uploadID)
		return
	}
	if up.UserID != user.Doc.ID {
		s.respondError(ctx, fasthttp.StatusForbidden, "access", "You did not initiate this upload.")
		return
	}

	offset, err := strconv.ParseInt(offsetRaw, 10, 64)
	if err != nil || offset != up.Doc.Received {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid chunk offset.")
		return
	}
	if up.Doc.Received+int64(len(chunk)) > up.Doc.Size {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Received too many bytes.")
		return
	}

	if _, err := s.store.AppendBytes(ctx, uploadDataKey(uploadID), chunk); err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}
	up.Doc.Received += int64(len(chunk))
	if err := s.store.PutJSON(ctx, uploadKey(uploadID), &up); err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}

	s.logger.Debug("Chunk accepted",
		zap.String("upload_id", uploadID),
		zap.Int64("offset", offset),
		zap.Int("bytes", len(chunk)),
		zap.Int64("received", up.Doc.Received))

	if up.Doc.Received < up.Doc.Size {
		s.respondJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
			"received": up.Doc.Received,
			"done":     false,
		})
		return
	}

	file, err := s.finalizeUpload(ctx, &up, user.Doc.ID)
	if err != nil {
		s.respondError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.respondJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"received": up.Doc.Received,
		"done":     true,
		"fileId":   file.ID,
		"itemId":   file.ItemID,
	})
}

// parseChunk extracts uploadId, offset, and content from either a multipart
// form (offset/uploadId fields plus a "chunk" file part) or a raw body with
// the offset and upload ID in headers.
func (s *Server) parseChunk(ctx *fasthttp.RequestCtx) (uploadID, offset string, chunk []byte, err error) {
	contentType := string(ctx.Request.Header.ContentType())

	if form, formErr := ctx.MultipartForm(); formErr == nil {
		if v := form.Value["uploadId"]; len(v) > 0 {
			uploadID = v[0]
		}
		if v := form.Value["offset"]; len(v) > 0 {
			offset = v[0]
		}
		parts := form.File["chunk"]
		if len(parts) == 0 {
			return "", "", nil, fmt.Errorf("No chunk file part in upload request.")
		}
		f, openErr := parts[0].Open()
		if openErr != nil {
			return "", "", nil, fmt.Errorf("Could not read chunk part.")
		}
		defer f.Close()
		chunk, err = io.ReadAll(f)
		if err != nil {
			return "", "", nil, fmt.Errorf("Could not read chunk part.")
		}
		return uploadID, offset, chunk, nil
	}

	if contentType == "application/octet-stream" {
		uploadID = string(ctx.Request.Header.Peek("X-Upload-Id"))
		offset = string(ctx.Request.Header.Peek(offsetHeader))
		return uploadID, offset, ctx.PostBody(), nil
	}

	return "", "", nil, fmt.Errorf("Unsupported chunk content type: %s", contentType)
}

// finalizeUpload turns a completed upload into an item (when targeting a
// folder) plus a file record carrying a content digest.
func (s *Server) finalizeUpload(ctx *fasthttp.RequestCtx, up *storedUpload, ownerID string) (*fileDoc, error) {
	data, err := s.store.GetBytes(ctx, uploadDataKey(up.Doc.ID))
	if err != nil {
		return nil, err
	}

	itemID := up.Doc.ParentID
	if up.Doc.ParentType == "folder" {
		item, err := s.insertItem(ctx, up.Doc.ParentID, up.Doc.Name, ownerID)
		if err != nil {
			return nil, err
		}
		itemID = item.Doc.ID
	}

	file := fileDoc{
		ID:     uuid.New().String(),
		ItemID: itemID,
		Name:   up.Doc.Name,
		Size:   up.Doc.Size,
		Digest: fmt.Sprintf("%016x", xxhash.Sum64(data)),
	}
	if err := s.store.PutJSON(ctx, fileKey(file.ID), &file); err != nil {
		return nil, err
	}
	if _, err := s.store.AppendBytes(ctx, "filedata:"+file.ID, data); err != nil {
		return nil, err
	}
	if err := s.store.AddToSet(ctx, itemFilesKey(itemID), file.ID); err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, uploadKey(up.Doc.ID), uploadDataKey(up.Doc.ID)); err != nil {
		return nil, err
	}

	s.logger.Debug("Upload finalized",
		zap.String("file_id", file.ID),
		zap.String("item_id", itemID),
		zap.Int64("size", file.Size),
		zap.String("digest", file.Digest))
	return &file, nil
}

// uploadOffset reports how many bytes the server holds for an upload, the
// resume primitive clients poll after a rejected chunk.
func (s *Server) uploadOffset(ctx *fasthttp.RequestCtx) {
	user := s.requireUser(ctx)
	if user == nil {
		return
	}

	uploadID := string(ctx.QueryArgs().Peek("uploadId"))
	var up storedUpload
	if err := s.store.GetJSON(ctx, uploadKey(uploadID), &up); err != nil {
		s.respondError(ctx, fasthttp.StatusBadRequest, "validation", "Invalid upload ID: "+uploadID)
		return
	}
	if up.UserID != user.Doc.ID {
		s.respondError(ctx, fasthttp.StatusForbidden, "access", "You did not initiate this upload.")
		return
	}

	s.respondJSON(ctx, fasthttp.StatusOK, map[string]int64{"offset": up.Doc.Received})
}
