package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/don7panic/script-partitioner/models"
	"github.com/don7panic/script-partitioner/partitioner"
	"github.com/don7panic/script-partitioner/server"
)

const script = `class M:
    pass

m = M()

def predict(x: int):
    return m, x
`

func TestPartitionHandler(t *testing.T) {
	type When struct {
		body string
	}
	type Then struct {
		status  int
		message string
	}

	e := server.BuildServer(
		partitioner.New(partitioner.WithKeyPrefix("objects/")),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	encode := func(req server.PartitionRequest) string {
		b, err := json.Marshal(req)
		if err != nil {
			t.Fatal(err)
		}
		return string(b)
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/partitions", strings.NewReader(when.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != then.status {
				t.Fatalf("want status %d, but got %d: %s", then.status, rec.Code, rec.Body.String())
			}
			if then.message != "" && !strings.Contains(rec.Body.String(), then.message) {
				t.Errorf("want body containing %q, but got %s", then.message, rec.Body.String())
			}
		}
	}

	t.Run("missing entry point is unprocessable", theory(
		When{body: encode(server.PartitionRequest{Script: script, EntryPoint: "serve"})},
		Then{status: http.StatusUnprocessableEntity, message: `entry point not found`},
	))
	t.Run("syntax error is a bad request", theory(
		When{body: encode(server.PartitionRequest{Script: "def predict(:\n", EntryPoint: "predict"})},
		Then{status: http.StatusBadRequest, message: "invalid syntax"},
	))
	t.Run("script is required", theory(
		When{body: encode(server.PartitionRequest{EntryPoint: "predict"})},
		Then{status: http.StatusBadRequest, message: "script"},
	))
	t.Run("entry point is required", theory(
		When{body: encode(server.PartitionRequest{Script: script})},
		Then{status: http.StatusBadRequest, message: "entry_point"},
	))
	t.Run("malformed body", theory(
		When{body: "{"},
		Then{status: http.StatusBadRequest},
	))
}

func TestPartitionHandlerSuccess(t *testing.T) {
	e := server.BuildServer(partitioner.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	body, err := json.Marshal(server.PartitionRequest{Script: script, EntryPoint: "predict", KeyPrefix: "team/a/"})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/partitions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got models.PartitionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.EntryPoint != "predict" {
		t.Errorf("Expected entry point predict, got %s", got.EntryPoint)
	}
	if typ, ok := got.InputSchema.Lookup("x"); !ok || typ != "int" {
		t.Errorf("Expected x: int in schema, got %v", got.InputSchema)
	}
	if !strings.Contains(got.TrainingScript, "'team/a/'") {
		t.Errorf("Expected key prefix from the request, got:\n%s", got.TrainingScript)
	}
	if len(got.External) != 1 || got.External[0] != "m" {
		t.Errorf("Expected external [m], got %v", got.External)
	}
}

func TestHealthz(t *testing.T) {
	e := server.BuildServer(partitioner.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}
