package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestHandleGetListenersReturnsJSON(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.Conf.WebUICORSAllowedOrigins = []string{"*"}
	require.NoError(t, RegisterListener(svc, ListenerRegistration{Name: "greetings", Handler: &greetingListener{}}))

	req := httptest.NewRequest(http.MethodGet, "/api/listeners", nil)
	rec := httptest.NewRecorder()
	svc.handleGetListeners(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var payload []struct {
		Name        string         `json:"name"`
		EventName   string         `json:"event_name"`
		PayloadType string         `json:"payload_type"`
		Stats       map[string]any `json:"stats"`
	}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload, 1)
	assert.Equal(t, "greetings", payload[0].Name)
	assert.Equal(t, stringValueKey, payload[0].EventName)
	assert.Equal(t, "google.protobuf.StringValue", payload[0].PayloadType)
	assert.Contains(t, payload[0].Stats, "messages_processed")
}

func TestWebUICORSOrigins(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.Conf.WebUICORSAllowedOrigins = []string{"https://ops.example.com"}

	req := httptest.NewRequest(http.MethodOptions, "/api/listeners", nil)
	req.Header.Set("Origin", "https://OPS.example.com")
	rec := httptest.NewRecorder()
	svc.handleGetListeners(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://OPS.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/listeners", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	svc.handleGetListeners(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleGetDispatch(t *testing.T) {
	svc, _, _ := newTestService(t)

	rec := httptest.NewRecorder()
	svc.handleGetDispatch(rec, httptest.NewRequest(http.MethodGet, "/api/dispatch", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	conf := newTestConfig()
	conf.MetricsEnabled = true
	svc, err := TryNewService(conf, newTestLogger(), context.Background(), ServiceDependencies{
		TransportFactory:          staticFactory(&testPublisher{}, &testSubscriber{}),
		DisableDefaultMiddlewares: true,
		MetricsRegisterer:         prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Publish(context.Background(), wrapperspb.String("hi"), nil))

	rec = httptest.NewRecorder()
	svc.handleGetDispatch(rec, httptest.NewRequest(http.MethodGet, "/api/dispatch", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot DispatchMetricsSnapshot
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &snapshot))
	require.Len(t, snapshot.Keys, 1)
	assert.Equal(t, stringValueKey, snapshot.Keys[0].Key)
	assert.Equal(t, uint64(1), snapshot.Keys[0].Succeeded)
}

func TestStartWebUIServerMountsRoutes(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.StartWebUIServer()
	assert.Empty(t, svc.httpServers)

	svc.Conf.WebUIEnabled = true
	svc.StartWebUIServer()
	assert.Contains(t, svc.httpServers, defaultWebUIPort)
}
