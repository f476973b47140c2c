package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"testing"
)

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
		ok   bool
	}{
		{"png", []byte("\x89PNG\r\n\x1a\n\x00\x00"), "image/png", true},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, "image/jpeg", true},
		{"gif", []byte("GIF89a"), "image/gif", true},
		{"tiff little endian", []byte("II*\x00\x08\x00"), "image/tiff", true},
		{"tiff big endian", []byte("MM\x00*\x00\x08"), "image/tiff", true},
		{"webp", []byte("RIFF\x24\x00\x00\x00WEBPVP8 "), "image/webp", true},
		{"pdf", []byte("%PDF-1.7"), "application/pdf", true},
		{"text", []byte("hello"), "", false},
		{"short", []byte{0xFF}, "", false},
		{"empty", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectMimeType(tt.data)
			if got != tt.want || ok != tt.ok {
				t.Errorf("DetectMimeType() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestReadImage(t *testing.T) {
	t.Run("too large", func(t *testing.T) {
		data := make([]byte, MaxImageSizeBytes+10)
		copy(data, "\x89PNG\r\n\x1a\n")
		_, _, err := readImage("test", bytes.NewReader(data))
		if !errors.Is(err, ErrImageTooLarge) {
			t.Errorf("readImage() error = %v, want ErrImageTooLarge", err)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		_, _, err := readImage("test", bytes.NewReader([]byte("plain text")))
		if !errors.Is(err, ErrInvalidImage) {
			t.Errorf("readImage() error = %v, want ErrInvalidImage", err)
		}
	})

	t.Run("valid", func(t *testing.T) {
		data, mime, err := readImage("test", bytes.NewReader([]byte{0xFF, 0xD8, 0xFF, 0xDB}))
		if err != nil {
			t.Fatalf("readImage() error = %v", err)
		}
		if mime != "image/jpeg" || len(data) != 4 {
			t.Errorf("readImage() = (%d bytes, %q)", len(data), mime)
		}
	})
}

func TestOCRErrorWrapping(t *testing.T) {
	err := WrapOCRError("DetectTokens", ErrOCRFailed, "engine down")
	if !errors.Is(err, ErrOCRFailed) {
		t.Errorf("errors.Is(ErrOCRFailed) = false for %v", err)
	}
	if got := err.Error(); got != "ocr: DetectTokens failed: engine down: OCR processing failed" {
		t.Errorf("Error() = %q", got)
	}

	again := WrapOCRError("Outer", err, "ignored")
	var ocrErr *OCRError
	if !errors.As(again, &ocrErr) || ocrErr.Op != "DetectTokens" {
		t.Errorf("WrapOCRError() double wrapped: %v", again)
	}

	if WrapOCRError("nil", nil, "") != nil {
		t.Error("WrapOCRError(nil) should be nil")
	}
}

func TestContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	if err := contextError("op", ctx); err != nil {
		t.Errorf("contextError(live) = %v", err)
	}
	cancel()
	if err := contextError("op", ctx); !errors.Is(err, ErrContextCanceled) {
		t.Errorf("contextError(canceled) = %v, want ErrContextCanceled", err)
	}
}

func TestBoxToken(t *testing.T) {
	tok, ok := boxToken(" 02:35 ", image.Rect(10, 20, 60, 45), 87)
	if !ok {
		t.Fatal("boxToken() rejected a valid box")
	}
	if tok.Text != "02:35" {
		t.Errorf("Text = %q", tok.Text)
	}
	if tok.Confidence == nil || *tok.Confidence != 0.87 {
		t.Errorf("Confidence = %v, want 0.87", tok.Confidence)
	}
	if len(tok.Polygon) != 4 || tok.Polygon[2].X != 60 || tok.Polygon[2].Y != 45 {
		t.Errorf("Polygon = %v", tok.Polygon)
	}

	if _, ok := boxToken("", image.Rect(0, 0, 5, 5), 90); ok {
		t.Error("boxToken() accepted an empty word")
	}
	if _, ok := boxToken("x", image.Rectangle{}, 90); ok {
		t.Error("boxToken() accepted an empty box")
	}
	if tok, _ := boxToken("x", image.Rect(0, 0, 5, 5), -1); tok.Confidence != nil {
		t.Error("boxToken() kept a negative confidence")
	}
}
