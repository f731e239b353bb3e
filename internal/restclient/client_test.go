package restclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/uidriver/pkg/transfer"
)

func TestTokenHeaderSentWhenSet(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get(TokenHeader)
		_, _ = w.Write([]byte(`{"_id":"u1","login":"alice"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	c.SetToken("tok-123")

	user, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", gotToken)
	assert.Equal(t, "alice", user.Login)
	assert.Zero(t, c.PendingRequests())
}

func TestAPIErrorDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"validation","message":"That login is already registered."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.CreateCollection(context.Background(), "c", "", false)
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "validation", apiErr.Type)
	assert.Equal(t, "That login is already registered.", apiErr.Message)
}

func TestNonJSONErrorBodyKeptVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.GetItem(context.Background(), "x")

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestAuthenticateStoresTokenAndLogoutClearsIt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			login, password, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "alice", login)
			assert.Equal(t, "secret", password)
			_, _ = w.Write([]byte(`{"user":{"_id":"u1","login":"alice"},"authToken":{"token":"session-1"}}`))
		case http.MethodDelete:
			assert.Equal(t, "session-1", r.Header.Get(TokenHeader))
			_, _ = w.Write([]byte(`{"message":"Logged out."}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	user, err := c.Authenticate(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "session-1", c.Token())

	require.NoError(t, c.Logout(context.Background()))
	assert.Empty(t, c.Token())
}

func TestAddMetadataFieldRejectsDuplicateLocally(t *testing.T) {
	var putCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			putCalls++
		}
		_, _ = w.Write([]byte(`{"_id":"i1","meta":{"color":"red"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.AddMetadataField(context.Background(), "i1", "color", "blue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata key already exists")
	assert.Zero(t, putCalls, "duplicate key must never reach the server")
}

func TestUploadChunkMultipartForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "100", r.FormValue("offset"))
		assert.Equal(t, "up-1", r.FormValue("uploadId"))

		file, header, err := r.FormFile("chunk")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "data.bin", header.Filename)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"_id": "up-1", "received": 103,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	resp, err := c.UploadChunk(context.Background(), &transfer.ChunkRequest{
		UploadID:  "up-1",
		Name:      "data.bin",
		Offset:    100,
		Body:      []byte{1, 2, 3},
		Multipart: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(103), resp.Received)
}

func TestUploadChunkRawBodyUsesHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		assert.Equal(t, "up-2", r.Header.Get("X-Upload-Id"))
		assert.Equal(t, "64", r.Header.Get(transfer.OffsetHeader))
		_, _ = w.Write([]byte(`{"_id":"up-2","received":67}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	resp, err := c.UploadChunk(context.Background(), &transfer.ChunkRequest{
		UploadID: "up-2",
		Offset:   64,
		Body:     []byte{4, 5, 6},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(67), resp.Received)
}

func TestUploadChunkHeaderOverrideWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "9999", r.Header.Get(transfer.OffsetHeader))
		_, _ = w.Write([]byte(`{"_id":"up-3","received":0}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.UploadChunk(context.Background(), &transfer.ChunkRequest{
		UploadID: "up-3",
		Offset:   0,
		Body:     []byte{7},
		Headers:  map[string]string{transfer.OffsetHeader: "9999"},
	})
	require.NoError(t, err)
}
