package handlers

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/halcyon-mobile/message-settings-api/migrations"
	"github.com/halcyon-mobile/message-settings-api/prefstore"
	"github.com/halcyon-mobile/message-settings-api/settings"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testService(t *testing.T) *settings.Service {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := migrations.Migrate(db); err != nil {
		t.Fatal(err)
	}

	store := prefstore.NewGormStore(db)

	t.Cleanup(func() {
		store.Close()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return settings.NewService(store)
}

func send(router *mux.Router, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func assertStatusCode(t *testing.T, res *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if res.Code != expected {
		t.Errorf("expected status code %d, got %d, body: %s", expected, res.Code, res.Body.String())
	}
}

func settingsRouter(svc *settings.Service) *mux.Router {
	h := NewSettings(svc)
	router := mux.NewRouter()
	router.Handle("/settings", h.GetSettings()).Methods(http.MethodGet)
	router.Handle("/settings", UseJson(h.SetSettings())).Methods(http.MethodPost)
	router.Handle("/settings/watch", h.Watch()).Methods(http.MethodGet)
	return router
}

func TestSettingsE2E(t *testing.T) {
	router := settingsRouter(testService(t))

	var steps = []struct {
		name           string
		body           io.Reader
		path           string
		method         string
		contentType    string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "get defaults",
			path:           "/settings",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
			expectedBody:   `{"deliveryReportsEnabled":false,"mmsAutoDownloadWifi":true,"mmsAutoDownloadCellular":false,"bypassDnd":false,"textSizeScale":1}`,
		},
		{
			name:           "partial update keeps other fields",
			body:           bytes.NewBufferString(`{"deliveryReportsEnabled": true}`),
			path:           "/settings",
			method:         http.MethodPost,
			contentType:    "application/json",
			expectedStatus: http.StatusOK,
			expectedBody:   `{"deliveryReportsEnabled":true,"mmsAutoDownloadWifi":true,"mmsAutoDownloadCellular":false,"bypassDnd":false,"textSizeScale":1}`,
		},
		{
			name:           "update persisted",
			path:           "/settings",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
			expectedBody:   `{"deliveryReportsEnabled":true,"mmsAutoDownloadWifi":true,"mmsAutoDownloadCellular":false,"bypassDnd":false,"textSizeScale":1}`,
		},
		{
			name:           "text size clamps on write",
			body:           bytes.NewBufferString(`{"textSizeScale": 2.5}`),
			path:           "/settings",
			method:         http.MethodPost,
			contentType:    "application/json",
			expectedStatus: http.StatusOK,
			expectedBody:   `{"deliveryReportsEnabled":true,"mmsAutoDownloadWifi":true,"mmsAutoDownloadCellular":false,"bypassDnd":false,"textSizeScale":1.6}`,
		},
		{
			name:           "empty body rejected",
			path:           "/settings",
			method:         http.MethodPost,
			contentType:    "application/json",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid body rejected",
			body:           bytes.NewBufferString(`{"textSizeScale": "big"}`),
			path:           "/settings",
			method:         http.MethodPost,
			contentType:    "application/json",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "wrong content type rejected",
			body:           bytes.NewBufferString(`{"bypassDnd": true}`),
			path:           "/settings",
			method:         http.MethodPost,
			contentType:    "text/plain",
			expectedStatus: http.StatusUnsupportedMediaType,
		},
	}

	for _, tt := range steps {
		t.Run(tt.name, func(t *testing.T) {
			res := send(router, tt.method, tt.path, tt.contentType, tt.body)
			assertStatusCode(t, res, tt.expectedStatus)
			if tt.expectedBody == "" {
				return
			}
			if got := strings.TrimSpace(res.Body.String()); got != tt.expectedBody {
				t.Errorf("expected response body to equal '%v', got '%v'", tt.expectedBody, got)
			}
		})
	}
}

func TestSettingsWatchSSE(t *testing.T) {
	svc := testService(t)
	router := settingsRouter(svc)

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/settings/watch", nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected an event stream, got %s", ct)
	}

	reader := bufio.NewReader(res.Body)

	readEvent := func() string {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatal(err)
			}
			if strings.HasPrefix(line, "data: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			}
		}
	}

	initial := readEvent()
	if !strings.Contains(initial, `"textSizeScale":1`) {
		t.Errorf("expected the initial event to carry the defaults, got %s", initial)
	}

	if err := svc.SetBool(context.Background(), settings.BypassDND, true); err != nil {
		t.Fatal(err)
	}

	update := readEvent()
	if !strings.Contains(update, `"bypassDnd":true`) {
		t.Errorf("expected the update event to carry the write, got %s", update)
	}
}

func TestIdempotencyMiddleware(t *testing.T) {
	router := settingsRouter(testService(t))

	h := UseIdempotency(router, IdempotencyHandlerOptions{
		Expiry: time.Hour,
	}, NewIdempotencyStoreLocal())

	wrapped := mux.NewRouter()
	wrapped.PathPrefix("/").Handler(h)

	body := func() io.Reader { return bytes.NewBufferString(`{"bypassDnd": true}`) }

	// Missing key
	req := httptest.NewRequest(http.MethodPost, "/settings", body())
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing Idempotency-Key, got %d", rr.Code)
	}

	// First use of a key
	req = httptest.NewRequest(http.MethodPost, "/settings", body())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "key-1")
	rr = httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for a fresh Idempotency-Key, got %d", rr.Code)
	}

	// Replay
	req = httptest.NewRequest(http.MethodPost, "/settings", body())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "key-1")
	rr = httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a replayed Idempotency-Key, got %d", rr.Code)
	}

	// GET requests are not checked
	req = httptest.NewRequest(http.MethodGet, "/settings", nil)
	rr = httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for a GET without a key, got %d", rr.Code)
	}
}
