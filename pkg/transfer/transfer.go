// Package transfer provides the upload interceptor used by scenarios to
// substitute synthetic payloads for real file content. The interceptor wraps
// an injected Uploader rather than patching any process-wide primitive, so
// installation is scoped to one harness and is idempotent.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrNoSource is returned when a chunk arrives and no synthetic source has
// been prepared. The original helper silently fell back to filler content
// here, which masked misconfigured tests; an explicit error replaces that.
// Tests that genuinely want filler content prepare a DashSource.
var ErrNoSource = errors.New("transfer: no synthetic source prepared")

// Uploader is the outbound chunk-transfer primitive. The REST client
// implements it for real transfers; the interceptor wraps it for tests.
type Uploader interface {
	UploadChunk(ctx context.Context, req *ChunkRequest) (*ChunkResponse, error)
}

// ChunkRequest carries one upload chunk. Multipart chunks travel as form
// fields plus a file part; raw chunks travel as the request body.
type ChunkRequest struct {
	UploadID  string
	Offset    int64
	Name      string
	Body      []byte
	Multipart bool

	// Headers are extra request headers. The interceptor uses this to attach
	// a deliberately malformed offset header on padded raw chunks so the
	// server rejects the transfer and the resume path gets exercised.
	Headers map[string]string
}

// ChunkResponse reports the server's view after a chunk is accepted.
type ChunkResponse struct {
	Received int64  `json:"received"`
	Done     bool   `json:"done"`
	FileID   string `json:"fileId,omitempty"`
	ItemID   string `json:"itemId,omitempty"`
}

// Record describes one simulated upload attempt. ExtraBytes pads the
// substituted payload past the declared size to force a server-side
// rejection and a subsequent resume.
type Record struct {
	Size       int64
	SourcePath string
	ExtraBytes int64

	// BytesSent accumulates across chunks of the attempt. Managed by the
	// interceptor.
	BytesSent int64
}

// Interceptor substitutes synthetic payloads for real chunk bodies before
// delegating to the wrapped Uploader. The wrapped call is never suppressed.
type Interceptor struct {
	next   Uploader
	logger *zap.Logger

	mu     sync.Mutex
	source Source
	rec    *Record
}

// NewInterceptor wraps the given uploader. A nil logger is replaced with a
// no-op logger.
func NewInterceptor(next Uploader, logger *zap.Logger) *Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interceptor{next: next, logger: logger}
}

// Prepare arms the interceptor for one upload attempt. It replaces any
// previous record; records are per-attempt and discarded by Reset or the
// next Prepare.
func (in *Interceptor) Prepare(rec Record, src Source) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.rec = &rec
	in.source = src

	in.logger.Debug("Prepared synthetic transfer",
		zap.Int64("size", rec.Size),
		zap.Int64("extra_bytes", rec.ExtraBytes),
		zap.String("source_path", rec.SourcePath))
}

// Reset discards the current record and source.
func (in *Interceptor) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.rec = nil
	in.source = nil
}

// Record returns a copy of the current attempt record, or false when none is
// prepared.
func (in *Interceptor) Record() (Record, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.rec == nil {
		return Record{}, false
	}
	return *in.rec, true
}

// UploadChunk substitutes the chunk body with synthetic content of the same
// declared length, padded by the record's ExtraBytes, then invokes the
// wrapped uploader. Offset, upload ID, and name pass through unchanged.
func (in *Interceptor) UploadChunk(ctx context.Context, req *ChunkRequest) (*ChunkResponse, error) {
	in.mu.Lock()
	rec := in.rec
	src := in.source
	in.mu.Unlock()

	if rec == nil || src == nil {
		return nil, ErrNoSource
	}

	declared := int64(len(req.Body))
	synthetic, err := src.Bytes(declared + rec.ExtraBytes)
	if err != nil {
		return nil, fmt.Errorf("transfer: synthetic source failed: %w", err)
	}

	out := &ChunkRequest{
		UploadID:  req.UploadID,
		Offset:    req.Offset,
		Name:      req.Name,
		Body:      synthetic,
		Multipart: req.Multipart,
		Headers:   copyHeaders(req.Headers),
	}

	if !req.Multipart && rec.ExtraBytes > 0 {
		// Raw padded chunks get a garbage offset header so the server rejects
		// the transfer outright instead of just counting excess bytes.
		if out.Headers == nil {
			out.Headers = make(map[string]string, 1)
		}
		out.Headers[OffsetHeader] = "not-a-number"
	}

	in.logger.Debug("Substituted chunk payload",
		zap.String("upload_id", req.UploadID),
		zap.Int64("offset", req.Offset),
		zap.Int64("declared", declared),
		zap.Int64("substituted", int64(len(synthetic))),
		zap.Bool("multipart", req.Multipart))

	resp, err := in.next.UploadChunk(ctx, out)

	in.mu.Lock()
	if in.rec != nil {
		in.rec.BytesSent += int64(len(synthetic))
	}
	in.mu.Unlock()

	return resp, err
}

// OffsetHeader is the header carrying the chunk offset on raw transfers.
const OffsetHeader = "X-Upload-Offset"

func copyHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
