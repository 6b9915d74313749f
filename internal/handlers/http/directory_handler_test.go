package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/services"
	"tradecast/internal/infrastructure/registry"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSender struct{}

func (nopSender) Send(ev domain.Event) error { return nil }

func setupRouter(t *testing.T) (*gin.Engine, *registry.ConnectionRegistry, *registry.StreamRegistry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conns := registry.NewConnectionRegistry()
	streams := registry.NewStreamRegistry(conns.Contains)

	router := gin.New()
	NewDirectoryHandler(services.NewStreamDirectory(conns, streams)).SetupRoutes(router)
	NewHealthHandler(conns, streams).SetupRoutes(router)
	return router, conns, streams
}

func startStream(t *testing.T, conns *registry.ConnectionRegistry, streams *registry.StreamRegistry, id domain.StreamID, owner domain.ConnectionID, identity domain.Identity) {
	t.Helper()
	require.NoError(t, conns.Register(&domain.Connection{ID: owner, Identity: identity}, nopSender{}))
	_, err := streams.Start(&domain.Stream{
		ID:            id,
		OwnerConn:     owner,
		OwnerIdentity: identity,
		Metadata:      domain.StreamMetadata{Title: "gold futures live"},
	})
	require.NoError(t, err)
}

func TestListStreams(t *testing.T) {
	router, conns, streams := setupRouter(t)
	startStream(t, conns, streams, "stream_a", "conn_1", "trader-ana")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/streams", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Streams []domain.StreamSummary `json:"streams"`
		Count   int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, domain.StreamID("stream_a"), body.Streams[0].ID)
}

func TestGetStream(t *testing.T) {
	router, conns, streams := setupRouter(t)
	startStream(t, conns, streams, "stream_a", "conn_1", "trader-ana")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/streams/stream_a", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/streams/stream_missing", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Code)
}

func TestIdentityOnline(t *testing.T) {
	router, conns, streams := setupRouter(t)
	startStream(t, conns, streams, "stream_a", "conn_1", "trader-ana")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/identities/trader-ana/online", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Online bool `json:"online"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Online)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/identities/trader-ghost/online", nil)
	router.ServeHTTP(w, req)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Online)
}

func TestHealth(t *testing.T) {
	router, conns, streams := setupRouter(t)
	startStream(t, conns, streams, "stream_a", "conn_1", "trader-ana")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		LiveStreams int    `json:"live_streams"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 1, body.Connections)
	assert.Equal(t, 1, body.LiveStreams)
}
