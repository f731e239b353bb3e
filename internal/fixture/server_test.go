package fixture

import (
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	mini   *miniredis.Miniredis
	store  *Store
	server *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	store, err := NewStore(mini.Addr(), 0, zap.NewNop())
	require.NoError(t, err)

	server := NewServer(store, zap.NewNop())
	require.NoError(t, server.Start("127.0.0.1:0"))
	t.Cleanup(func() { _ = server.Shutdown() })

	return &testEnv{mini: mini, store: store, server: server}
}

func (e *testEnv) request(t *testing.T, method, path, token string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, e.server.BaseURL()+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set(tokenHeader, token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		require.NoError(t, err)
		defer gz.Close()
		reader = gz
	}
	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	return resp, body
}

func (e *testEnv) registerUser(t *testing.T, login string) string {
	t.Helper()

	path := "/api/v1/user?login=" + login + "&email=" + login + "@example.com" +
		"&firstName=Test&lastName=User&password=secret"
	resp, body := e.request(t, http.MethodPost, path, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var payload struct {
		AuthToken struct {
			Token string `json:"token"`
		} `json:"authToken"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NotEmpty(t, payload.AuthToken.Token)
	return payload.AuthToken.Token
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestShellPageServed(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), `id="login-dialog"`)
	assert.Contains(t, string(body), `class="g-register-link"`)
}

func TestRegistrationIssuesSession(t *testing.T) {
	env := newTestEnv(t)

	token := env.registerUser(t, "alice")

	resp, body := env.request(t, http.MethodGet, "/api/v1/user/me", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"login":"alice"`)
}

func TestDuplicateLoginRejected(t *testing.T) {
	env := newTestEnv(t)

	env.registerUser(t, "bob")

	path := "/api/v1/user?login=bob&email=other@example.com&firstName=B&lastName=O&password=secret"
	resp, body := env.request(t, http.MethodPost, path, "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "That login is already registered.")
}

func TestBasicAuthLoginAndLogout(t *testing.T) {
	env := newTestEnv(t)

	env.registerUser(t, "carol")

	creds := base64.StdEncoding.EncodeToString([]byte("carol:secret"))
	resp, body := env.request(t, http.MethodGet, "/api/v1/user/authentication", "",
		map[string]string{"Authorization": "Basic " + creds})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var payload struct {
		AuthToken struct {
			Token string `json:"token"`
		} `json:"authToken"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	token := payload.AuthToken.Token

	resp, _ = env.request(t, http.MethodDelete, "/api/v1/user/authentication", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The token is dead after logout.
	resp, body = env.request(t, http.MethodGet, "/api/v1/user/me", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "null", strings.TrimSpace(string(body)))
}

func TestWrongPasswordRejected(t *testing.T) {
	env := newTestEnv(t)

	env.registerUser(t, "dave")

	creds := base64.StdEncoding.EncodeToString([]byte("dave:wrong"))
	resp, body := env.request(t, http.MethodGet, "/api/v1/user/authentication", "",
		map[string]string{"Authorization": "Basic " + creds})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "Login failed.")
}

func TestAnonymousWriteRejected(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodPost, "/api/v1/collection?name=c", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "You must be logged in.")
}

func TestMetadataKeyValidation(t *testing.T) {
	cases := []struct {
		key     string
		wantErr string
	}{
		{"good-key", ""},
		{"", "Key names must not be empty."},
		{"dot.ted", "keys must not contain a period"},
		{"$dollar", "keys must not start with a dollar sign"},
	}
	for _, tc := range cases {
		err := validateMetaKey(tc.key)
		if tc.wantErr == "" {
			assert.NoError(t, err, tc.key)
			continue
		}
		require.Error(t, err, tc.key)
		assert.Contains(t, err.Error(), tc.wantErr)
	}
}

func TestGzipAppliedToLargeResponses(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/", "", map[string]string{
		"Accept-Encoding": "gzip",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	// The helper transparently decompressed; the header proves encoding ran.
	assert.Contains(t, string(body), "login-dialog")
}
