package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printforge/dispatch/internal/config"
	"github.com/printforge/dispatch/internal/core"
	"github.com/printforge/dispatch/internal/db"
)

func newPrinterRouter(t *testing.T, endpoints string) (*gin.Engine, *db.Store) {
	t.Helper()
	store, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := core.NewClient(config.DispatchConfig{Endpoints: endpoints})
	h := NewPrinterHandler(store, client)

	router := gin.New()
	router.POST("/api/printers", h.CreatePrinter)
	router.GET("/api/printers", h.ListPrinters)
	router.GET("/api/printers/:id", h.GetPrinter)
	router.PUT("/api/printers/:id", h.UpdatePrinter)
	router.PATCH("/api/printers/:id/status", h.UpdatePrinterStatus)
	router.DELETE("/api/printers/:id", h.DeletePrinter)
	router.GET("/api/backends/:index/health", h.BackendHealth)
	return router, store
}

func validPrinterBody() map[string]interface{} {
	return map[string]interface{}{
		"name": "front-desk",
		"capabilities": map[string]interface{}{
			"supported_page_sizes": []string{"A4"},
			"supports_color":       true,
			"supports_duplex":      false,
			"max_copies":           20,
			"supported_file_types": []string{"pdf"},
		},
	}
}

func TestCreatePrinterDefaultsToEnabled(t *testing.T) {
	router, store := newPrinterRouter(t, "")

	w := postJSON(router, "/api/printers", validPrinterBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created db.Printer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, created.IsActive)
	assert.True(t, created.AutoPrintEnabled)

	got, err := store.Printers.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, got.Capabilities.SupportsColor)
}

func TestCreatePrinterExplicitFlags(t *testing.T) {
	router, _ := newPrinterRouter(t, "")

	body := validPrinterBody()
	body["is_active"] = false
	body["auto_print_enabled"] = false

	w := postJSON(router, "/api/printers", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var created db.Printer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.False(t, created.IsActive)
	assert.False(t, created.AutoPrintEnabled)
}

func TestCreatePrinterRequiresName(t *testing.T) {
	router, _ := newPrinterRouter(t, "")

	body := validPrinterBody()
	delete(body, "name")

	w := postJSON(router, "/api/printers", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdatePrinterStatusValidation(t *testing.T) {
	router, store := newPrinterRouter(t, "")

	p := &db.Printer{Name: "p1", Status: db.PrinterStatusOnline, IsActive: true, AutoPrintEnabled: true}
	require.NoError(t, store.Printers.Create(context.Background(), p))
	path := fmt.Sprintf("/api/printers/%d/status", p.ID)

	w := patchJSON(router, path, map[string]string{"status": "maintenance"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = patchJSON(router, path, map[string]string{"status": "on-fire"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = patchJSON(router, "/api/printers/9999/status", map[string]string{"status": "online"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func patchJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPatch, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDeletePrinter(t *testing.T) {
	router, store := newPrinterRouter(t, "")

	p := &db.Printer{Name: "gone", Status: db.PrinterStatusOnline}
	require.NoError(t, store.Printers.Create(context.Background(), p))

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/printers/%d", p.ID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBackendHealthNoEndpoints(t *testing.T) {
	router, _ := newPrinterRouter(t, "")

	assert.Equal(t, http.StatusServiceUnavailable, get(router, "/api/backends/1/health").Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/api/backends/0/health").Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/api/backends/abc/health").Code)
}

func TestBackendHealthProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	router, _ := newPrinterRouter(t, srv.URL)

	w := get(router, "/api/backends/1/health")
	require.Equal(t, http.StatusOK, w.Code)

	var status core.HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Healthy)
}
