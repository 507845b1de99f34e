package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/pma-display-go/internal/config"
	"github.com/frostdev-ops/pma-display-go/internal/core/engine"
	"github.com/frostdev-ops/pma-display-go/internal/core/framebuffer"
	"github.com/frostdev-ops/pma-display-go/internal/core/imagesource"
	"github.com/frostdev-ops/pma-display-go/internal/core/render"
	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// testRouter wires a router around an engine with one in-memory display.
func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	images := imagesource.NewService(imagesource.PolicyStrict, nil, nil, quietLogger())
	renderer := render.NewRenderer(resolver.NewStatic(nil), images, quietLogger())
	eng := engine.NewService(renderer, resolver.NewStatic(nil), nil, nil, nil, quietLogger(), engine.Options{})
	t.Cleanup(eng.Close)

	fb, err := framebuffer.New(64, 64, nil, quietLogger())
	require.NoError(t, err)
	require.NoError(t, eng.AddTarget("display-1", fb))

	h := NewHandlers(&config.Config{}, eng, nil, nil, quietLogger())

	router := gin.New()
	router.GET("/health", h.Health)
	api := router.Group("/api/v1")
	api.POST("/render", h.RenderPage)
	api.GET("/displays/:name", h.DisplayStatus)
	api.POST("/displays/:name/rotation", h.StartRotation)
	api.DELETE("/displays/:name/rotation", h.StopRotation)
	api.POST("/displays/:name/override", h.ShowOverride)
	api.DELETE("/displays/:name/override", h.CancelOverride)
	api.GET("/templates/:name", h.GetTemplate)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	w := doJSON(t, testRouter(t), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestRenderEndpoint(t *testing.T) {
	router := testRouter(t)
	w := doJSON(t, router, http.MethodPost, "/api/v1/render", gin.H{
		"page": gin.H{
			"kind": "components",
			"components": []gin.H{
				{"type": "text", "x": 0, "y": 0, "text": "hello"},
			},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Success bool                      `json:"success"`
		Data    map[string]*render.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Contains(t, body.Data, "display-1")
	assert.Equal(t, render.OutcomeComplete, body.Data["display-1"].Outcome)
}

func TestRenderEndpointRejectsBadPages(t *testing.T) {
	router := testRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/render", gin.H{
		"page": gin.H{"kind": "components"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty component list")

	w = doJSON(t, router, http.MethodPost, "/api/v1/render", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing page")
}

func TestDisplayStatusEndpoint(t *testing.T) {
	router := testRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/displays/display-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/displays/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRotationEndpoints(t *testing.T) {
	router := testRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/displays/display-1/rotation", gin.H{
		"default_duration_seconds": 3600,
		"pages": []gin.H{
			{"kind": "components", "components": []gin.H{{"type": "text", "x": 0, "y": 0, "text": "a"}}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/v1/displays/display-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Data struct {
			RotationState string `json:"rotation_state"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "running", status.Data.RotationState)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/displays/display-1/rotation", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/displays/display-1/rotation", gin.H{
		"pages": []gin.H{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty page list")
}

func TestOverrideEndpoints(t *testing.T) {
	router := testRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/displays/display-1/override", gin.H{
		"page": gin.H{
			"kind":       "components",
			"components": []gin.H{{"type": "text", "x": 0, "y": 0, "text": "alert"}},
		},
		"duration_seconds": 60,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodDelete, "/api/v1/displays/display-1/override", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/displays/ghost/override", gin.H{
		"page": gin.H{
			"kind":       "components",
			"components": []gin.H{{"type": "text", "x": 0, "y": 0, "text": "alert"}},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTemplateEndpointsWithoutStore(t *testing.T) {
	router := testRouter(t)
	w := doJSON(t, router, http.MethodGet, "/api/v1/templates/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
