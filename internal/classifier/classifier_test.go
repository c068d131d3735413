package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pegut0/ClassificadorSomIA/internal/features"
)

func TestNewClassSet(t *testing.T) {
	tests := []struct {
		name    string
		labels  []string
		wantErr bool
	}{
		{"default labels", DefaultLabels, false},
		{"single label", []string{"dog"}, true},
		{"empty label", []string{"dog", ""}, true},
		{"duplicate label", []string{"dog", "siren", "dog"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClassSet(tt.labels...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClassSet() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClassSetIsImmutable(t *testing.T) {
	labels := []string{"dog", "siren"}
	cs, err := NewClassSet(labels...)
	if err != nil {
		t.Fatalf("NewClassSet failed: %v", err)
	}

	labels[0] = "cat"
	got := cs.Labels()
	got[1] = "horn"

	if cs.Label(0) != "dog" || cs.Label(1) != "siren" {
		t.Errorf("class set was modified: %v", cs.Labels())
	}
	if cs.Len() != 2 {
		t.Errorf("expected 2 labels, got %d", cs.Len())
	}
}

func TestCheckOutput(t *testing.T) {
	cs, _ := NewClassSet(DefaultLabels...)

	if err := cs.CheckOutput([]float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.5}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := cs.CheckOutput([]float64{0, 0, 1, 0, 0, 0}); err != nil {
		t.Errorf("unexpected error at the range bounds: %v", err)
	}

	for _, probs := range [][]float64{
		{0.5, 0.5},
		{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.4},
		{0.1, 0.1, math.NaN(), 0.1, 0.1, 0.5},
		{0.1, 0.1, math.Inf(1), 0.1, 0.1, 0.5},
		{-2.3, 0.4, 7.9, 0.1, 0.0, 1.2},
		{0.1, 0.1, 0.1, 0.1, -0.01, 0.5},
		{0.1, 0.1, 0.1, 0.1, 0.1, 1.0001},
	} {
		if err := cs.CheckOutput(probs); !errors.Is(err, ErrModelUnavailable) {
			t.Errorf("CheckOutput(%v): expected ErrModelUnavailable, got %v", probs, err)
		}
	}
}

func testSpectrogram() *features.Spectrogram {
	s := features.NewSpectrogram(4, 3)
	for i := range s.Data {
		s.Data[i] = -float64(i)
	}
	return s
}

func newTestClient(t *testing.T, url string, retries int) *TFServing {
	t.Helper()
	c, err := NewTFServing(TFServingConfig{
		Endpoint:      url,
		Model:         "sound",
		Timeout:       2 * time.Second,
		MaxRetries:    retries,
		MaxConcurrent: 2,
		RetryBackoff:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewTFServing failed: %v", err)
	}
	return c
}

func TestNewTFServingValidation(t *testing.T) {
	tests := []struct {
		name   string
		config TFServingConfig
	}{
		{"empty endpoint", TFServingConfig{Model: "sound"}},
		{"relative endpoint", TFServingConfig{Endpoint: "localhost", Model: "sound"}},
		{"empty model", TFServingConfig{Endpoint: "http://localhost:8501"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTFServing(tt.config); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTFServingPredict(t *testing.T) {
	var got predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/models/sound:predict" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"predictions": [[0.1, 0.2, 0.7]]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	probs, err := c.Predict(context.Background(), testSpectrogram())
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	if len(probs) != 3 || probs[2] != 0.7 {
		t.Errorf("unexpected probabilities %v", probs)
	}

	if len(got.Instances) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(got.Instances))
	}
	inst := got.Instances[0]
	if len(inst) != 4 || len(inst[0]) != 3 || len(inst[0][0]) != 1 {
		t.Fatalf("unexpected instance shape %dx%dx%d", len(inst), len(inst[0]), len(inst[0][0]))
	}
	// bin 1, frame 2 is element 5 in row-major order
	if inst[1][2][0] != -5 {
		t.Errorf("expected -5 at [1][2], got %f", inst[1][2][0])
	}

	stats := c.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestTFServingRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"predictions": [[0.4, 0.6]]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	if _, err := c.Predict(context.Background(), testSpectrogram()); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
	if stats := c.GetStats(); stats.TotalRetries != 2 {
		t.Errorf("expected 2 retries, got %d", stats.TotalRetries)
	}
}

func TestTFServingDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error": "bad input shape"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	_, err := c.Predict(context.Background(), testSpectrogram())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 call, got %d", n)
	}
	if stats := c.GetStats(); stats.FailedRequests != 1 {
		t.Errorf("expected 1 failed request, got %d", stats.FailedRequests)
	}
}

func TestTFServingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, 0)
	if _, err := c.Predict(context.Background(), testSpectrogram()); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestTFServingStatus(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		wantErr bool
	}{
		{"available", http.StatusOK, `{"model_version_status":[{"version":"1","state":"AVAILABLE","status":{"error_code":"OK"}}]}`, false},
		{"loading", http.StatusOK, `{"model_version_status":[{"version":"1","state":"LOADING"}]}`, true},
		{"not found", http.StatusNotFound, `{"error":"Could not find any versions of model sound"}`, true},
		{"garbage", http.StatusOK, `not json`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/models/sound" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, 0)
			_, err := c.Status(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Status() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrModelUnavailable) {
				t.Errorf("expected ErrModelUnavailable, got %v", err)
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{context.DeadlineExceeded, true},
		{&statusError{code: 503}, true},
		{&statusError{code: 429}, true},
		{&statusError{code: 400}, false},
		{errors.New("failed to parse response JSON"), false},
	}

	for _, tt := range tests {
		if got := isRetryableError(tt.err); got != tt.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
