package rehost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*ImgurClient, *int) {
	t.Helper()
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewImgurClient("test-id")
	c.uploadURL = srv.URL
	return c, &requests
}

func TestUploadReturnsHostedLink(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Client-ID test-id" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("image"); got != "https://cdn.example/cat.png" {
			t.Errorf("image = %q", got)
		}
		fmt.Fprint(w, `{"success":true,"data":{"link":"https://i.imgur.com/abc.png"}}`)
	})

	link, err := c.Upload(context.Background(), "https://cdn.example/cat.png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if link != "https://i.imgur.com/abc.png" {
		t.Errorf("link = %q", link)
	}
}

func TestUploadStopsWhenPostQuotaSpent(t *testing.T) {
	c, requests := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Post-Rate-Limit-Remaining", "0")
		w.Header().Set("X-Post-Rate-Limit-Reset", "3600")
		fmt.Fprint(w, `{"success":true,"data":{"link":"https://i.imgur.com/abc.png"}}`)
	})

	if _, err := c.Upload(context.Background(), "https://cdn.example/a.png"); err != nil {
		t.Fatalf("first upload: %v", err)
	}

	// Quota is now spent until the reset; no request goes out.
	if _, err := c.Upload(context.Background(), "https://cdn.example/b.png"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second upload err = %v, want ErrRateLimited", err)
	}
	if *requests != 1 {
		t.Errorf("requests = %d, want 1", *requests)
	}
}

func TestUploadResumesAfterQuotaReset(t *testing.T) {
	c, requests := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-UserRemaining", "0")
		w.Header().Set("X-RateLimit-UserReset", "1")
		fmt.Fprint(w, `{"success":true,"data":{"link":"https://i.imgur.com/abc.png"}}`)
	})

	if _, err := c.Upload(context.Background(), "https://cdn.example/a.png"); err != nil {
		t.Fatalf("first upload: %v", err)
	}

	// The recorded reset (epoch second 1) is long past, so the quota does
	// not block.
	if !c.allow(time.Now()) {
		t.Fatal("allow = false after reset passed")
	}
	if _, err := c.Upload(context.Background(), "https://cdn.example/b.png"); err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if *requests != 2 {
		t.Errorf("requests = %d, want 2", *requests)
	}
}

func TestUploadRejectionIsError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"success":false,"data":{"error":"bad image"}}`)
	})

	if _, err := c.Upload(context.Background(), "https://cdn.example/nope"); err == nil {
		t.Fatal("Upload succeeded on a rejected response")
	}
}
