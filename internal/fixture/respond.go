package fixture

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/fasthttp"
)

// gzipMinSize is the smallest body worth compressing.
const gzipMinSize = 256

// respondJSON writes a JSON body, gzip-encoded when the client accepts it
// and the body is big enough to matter.
func (s *Server) respondJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"type":"internal","message":"response encoding failed"}`)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	s.writeBody(ctx, body)
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// respondError writes the application's structured error shape.
func (s *Server) respondError(ctx *fasthttp.RequestCtx, status int, errType, message string) {
	s.respondJSON(ctx, status, errorBody{Type: errType, Message: message})
}

// writeBody applies gzip encoding when negotiated.
func (s *Server) writeBody(ctx *fasthttp.RequestCtx, body []byte) {
	if len(body) >= gzipMinSize && ctx.Request.Header.HasAcceptEncoding("gzip") {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err == nil && w.Close() == nil {
			ctx.Response.Header.Set(fasthttp.HeaderContentEncoding, "gzip")
			ctx.SetBody(buf.Bytes())
			return
		}
	}
	ctx.SetBody(body)
}

func decodeBase64(s string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
