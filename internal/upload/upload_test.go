package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deusflow/dispatch/internal/retry"
)

func TestCloudinary_Upload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1_1/demo/image/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("upload_preset"); got != "unsigned" {
			t.Errorf("upload_preset = %q", got)
		}
		if got := r.FormValue("public_id"); got != "run-1/nat_1" {
			t.Errorf("public_id = %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if string(data) != "png-bytes" || hdr.Filename != "nat_1.png" {
			t.Errorf("unexpected file %q (%s)", data, hdr.Filename)
		}
		fmt.Fprint(w, `{"secure_url":"https://res.cloudinary.com/demo/image/upload/run-1/nat_1.png"}`)
	}))
	defer srv.Close()

	c := NewCloudinary(srv.URL, "demo", "unsigned", srv.Client())
	url, err := c.Upload(context.Background(), "run-1/nat_1", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasSuffix(url, "/run-1/nat_1.png") {
		t.Errorf("url = %q", url)
	}
}

func TestCloudinary_ErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Upload preset not found"}}`)
	}))
	defer srv.Close()

	c := NewCloudinary(srv.URL, "demo", "missing", srv.Client())
	_, err := c.Upload(context.Background(), "x", []byte("png"))
	if err == nil || !strings.Contains(err.Error(), "Upload preset not found") {
		t.Fatalf("expected cloudinary error message, got %v", err)
	}
}

func TestRetrying_CloudinaryStatuses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"bad request", http.StatusBadRequest, 1},
		{"unauthorized", http.StatusUnauthorized, 1},
		{"forbidden", http.StatusForbidden, 1},
		{"server error", http.StatusInternalServerError, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"Upload preset not found"}}`)
			}))
			defer srv.Close()

			r := Retrying{
				Uploader: NewCloudinary(srv.URL, "demo", "missing", srv.Client()),
				Config:   retry.RetryConfig{MaxAttempts: 3, Delay: time.Millisecond},
			}
			_, err := r.Upload(context.Background(), "run-1/nat_1", []byte("png"))
			if err == nil || !strings.Contains(err.Error(), "Upload preset not found") {
				t.Fatalf("unexpected error %v", err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestGCSKeysAndURLs(t *testing.T) {
	key := objectKey("dispatch", "run-1/nat_1")
	if key != "dispatch/run-1/nat_1.png" {
		t.Errorf("objectKey = %q", key)
	}
	if got := objectKey("", "/run-1/nat_1"); got != "run-1/nat_1.png" {
		t.Errorf("objectKey without prefix = %q", got)
	}
	if got := publicURL("", "media", key); got != "https://storage.googleapis.com/media/dispatch/run-1/nat_1.png" {
		t.Errorf("default public url = %q", got)
	}
	if got := publicURL("https://cdn.example.com", "media", key); got != "https://cdn.example.com/dispatch/run-1/nat_1.png" {
		t.Errorf("custom public url = %q", got)
	}
}

type flakyUploader struct {
	failures int
	calls    int
}

func (f *flakyUploader) Upload(ctx context.Context, name string, png []byte) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("503")
	}
	return "https://cdn/" + name, nil
}

func TestRetrying_Upload(t *testing.T) {
	inner := &flakyUploader{failures: 1}
	r := Retrying{Uploader: inner, Config: retry.RetryConfig{MaxAttempts: 2, Delay: time.Millisecond}}

	url, err := r.Upload(context.Background(), "a", nil)
	if err != nil || url != "https://cdn/a" {
		t.Fatalf("Upload = %q, %v", url, err)
	}

	inner = &flakyUploader{failures: 5}
	r.Uploader = inner
	if _, err := r.Upload(context.Background(), "a", nil); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}
