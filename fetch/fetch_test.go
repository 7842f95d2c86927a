package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetcher_Fetch(t *testing.T) {
	content := []byte("%PDF-1.7 fetched")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	f := NewFetcher(1 << 20)
	data, filename, err := f.Fetch(context.Background(), srv.URL+"/papers/report.pdf", "")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("Fetched bytes do not match")
	}
	if filename != "report.pdf" {
		t.Errorf("Expected filename report.pdf, got %s", filename)
	}
}

func TestFetcher_FilenameFromContentDisposition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="invoice.pdf"`)
		w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	f := NewFetcher(1 << 20)
	_, filename, err := f.Fetch(context.Background(), srv.URL+"/download?id=42", "")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if filename != "invoice.pdf" {
		t.Errorf("Expected invoice.pdf, got %s", filename)
	}
}

func TestFetcher_ExplicitFilenameWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	f := NewFetcher(1 << 20)
	_, filename, err := f.Fetch(context.Background(), srv.URL+"/something.bin", "mine.pdf")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if filename != "mine.pdf" {
		t.Errorf("Expected mine.pdf, got %s", filename)
	}
}

func TestFetcher_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("a"), 2048))
	}))
	defer srv.Close()

	f := NewFetcher(1024)
	_, _, err := f.Fetch(context.Background(), srv.URL, "")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Expected ErrFileTooLarge, got %v", err)
	}
}

func TestFetcher_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(1024)
	_, _, err := f.Fetch(context.Background(), srv.URL, "")
	if err == nil {
		t.Fatal("Expected error for HTTP 404 source")
	}
}

func TestInferFilename_Fallback(t *testing.T) {
	if got := inferFilename("", "https://example.com/"); got != "document.pdf" {
		t.Errorf("Expected document.pdf fallback, got %s", got)
	}
}
