package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"error"`
}

func post(t *testing.T, handler http.Handler, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) testResponse {
	t.Helper()

	var res testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestServerForwardsCall(t *testing.T) {
	read := new(mockBackend)
	read.On("CallContext", "eth_blockNumber", 0).Return(`"0x10"`, nil)
	handler := NewServer(":0", NewRouter(new(mockBackend), read, newLimiter(10, 10), Config{})).Handler()

	rec := post(t, handler, `{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber","params":[]}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
	res := decode(t, rec)
	assert.JSONEq(t, `1`, string(res.ID))
	assert.JSONEq(t, `"0x10"`, string(res.Result))
	assert.Nil(t, res.Error)
}

func TestServerReportsRateLimit(t *testing.T) {
	read := new(mockBackend)
	read.On("CallContext", "eth_chainId", 0).Return(`"0x385"`, nil)
	handler := NewServer(":0", NewRouter(new(mockBackend), read, newLimiter(1, 10), Config{})).WithTrustForwardedFor(true).Handler()
	header := http.Header{headerForwardedFor: []string{"203.0.113.7, 10.0.0.1"}}
	body := `{"jsonrpc":"2.0","id":"a","method":"eth_chainId"}`

	require.Equal(t, http.StatusOK, post(t, handler, body, header).Code)

	rec := post(t, handler, body, header)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get(headerRetryAfter))

	res := decode(t, rec)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeRateLimited, res.Error.Code)
	assert.JSONEq(t, `{"key":"203.0.113.7","observedCount":2,"limit":1,"windowMillis":60000}`, string(res.Error.Data))
}

func TestServerRejectsUnsupportedMethod(t *testing.T) {
	handler := NewServer(":0", NewRouter(new(mockBackend), new(mockBackend), newLimiter(10, 10), Config{})).Handler()

	res := decode(t, post(t, handler, `{"jsonrpc":"2.0","id":7,"method":"personal_sign","params":[]}`, nil))

	require.NotNil(t, res.Error)
	assert.Equal(t, CodeMethodNotFound, res.Error.Code)
	assert.Contains(t, res.Error.Message, "personal_sign")
}

func TestServerPassesBackendErrorsThrough(t *testing.T) {
	read := new(mockBackend)
	read.On("CallContext", "eth_call", 1).Return("", &backendError{code: 3, msg: "execution reverted"})
	handler := NewServer(":0", NewRouter(new(mockBackend), read, newLimiter(10, 10), Config{})).Handler()

	res := decode(t, post(t, handler, `{"jsonrpc":"2.0","id":1,"method":"eth_call","params":[{"to":"0x00"}]}`, nil))

	require.NotNil(t, res.Error)
	assert.Equal(t, 3, res.Error.Code)
	assert.Equal(t, "execution reverted", res.Error.Message)
	assert.JSONEq(t, `"0x08c379a0"`, string(res.Error.Data))
}

func TestServerHandlesBatches(t *testing.T) {
	read := new(mockBackend)
	read.On("CallContext", "eth_blockNumber", 0).Return(`"0x10"`, nil)
	handler := NewServer(":0", NewRouter(new(mockBackend), read, newLimiter(10, 10), Config{})).Handler()

	rec := post(t, handler, `[
		{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber"},
		{"jsonrpc":"2.0","id":2,"method":"eth_mining"}
	]`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var res []testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res, 2)
	assert.JSONEq(t, `"0x10"`, string(res[0].Result))
	require.NotNil(t, res[1].Error)
	assert.Equal(t, CodeMethodNotFound, res[1].Error.Code)
}

func TestServerRejectsMalformedRequests(t *testing.T) {
	handler := NewServer(":0", NewRouter(new(mockBackend), new(mockBackend), newLimiter(10, 10), Config{})).Handler()

	tests := []struct {
		name   string
		body   string
		status int
		code   int
	}{
		{name: "not json", body: `{`, status: http.StatusBadRequest, code: CodeParseError},
		{name: "wrong version", body: `{"jsonrpc":"1.0","id":1,"method":"eth_chainId"}`, status: http.StatusOK, code: CodeInvalidRequest},
		{name: "object params", body: `{"jsonrpc":"2.0","id":1,"method":"eth_chainId","params":{}}`, status: http.StatusOK, code: CodeInvalidParams},
		{name: "empty batch", body: `[]`, status: http.StatusBadRequest, code: CodeParseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, handler, tt.body, nil)
			assert.Equal(t, tt.status, rec.Code)

			res := decode(t, rec)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
		})
	}
}

func TestSourceIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "192.0.2.1:4242"
	assert.Equal(t, "192.0.2.1", sourceIP(req, true))

	req.Header.Set(headerForwardedFor, " 198.51.100.2 , 192.0.2.1")
	assert.Equal(t, "198.51.100.2", sourceIP(req, true))
	assert.Equal(t, "192.0.2.1", sourceIP(req, false))
}

func TestServerIgnoresUntrustedForwardedFor(t *testing.T) {
	read := new(mockBackend)
	read.On("CallContext", "eth_chainId", 0).Return(`"0x385"`, nil)
	handler := NewServer(":0", NewRouter(new(mockBackend), read, newLimiter(1, 10), Config{})).Handler()
	body := `{"jsonrpc":"2.0","id":"a","method":"eth_chainId"}`

	first := http.Header{headerForwardedFor: []string{"203.0.113.7"}}
	require.Equal(t, http.StatusOK, post(t, handler, body, first).Code)

	// a rotated header does not buy a fresh window
	rotated := http.Header{headerForwardedFor: []string{"203.0.113.8"}}
	rec := post(t, handler, body, rotated)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	read.AssertNumberOfCalls(t, "CallContext", 1)
}
