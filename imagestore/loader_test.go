package imagestore

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"testing/fstest"
)

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{100, 50, 40, 40, 20},
		{50, 100, 40, 20, 40},
		{64, 64, 32, 32, 32},
		{1000, 1, 10, 10, 1},
	}
	for _, tt := range tests {
		w, h := fitWithin(tt.w, tt.h, tt.max)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("fitWithin(%d, %d, %d) = %dx%d, want %dx%d",
				tt.w, tt.h, tt.max, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestDecodeRGBAConvertsToOrigin(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 2))
	src.SetGray(1, 1, color.Gray{Y: 200})
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("png.Encode() error: %v", err)
	}

	rgba, format, err := decodeRGBA(&buf, 0)
	if err != nil {
		t.Fatalf("decodeRGBA() error: %v", err)
	}
	if format != "png" {
		t.Errorf("format = %q, want png", format)
	}
	if rgba.Bounds() != image.Rect(0, 0, 3, 2) {
		t.Errorf("bounds = %v, want (0,0)-(3,2)", rgba.Bounds())
	}
	if got := rgba.RGBAAt(1, 1); got != (color.RGBA{200, 200, 200, 255}) {
		t.Errorf("pixel (1,1) = %v, want gray 200", got)
	}
	if len(rgba.Pix) != 3*2*4 {
		t.Errorf("len(Pix) = %d, want 24", len(rgba.Pix))
	}
}

func TestDecodeRGBARejectsGarbage(t *testing.T) {
	if _, _, err := decodeRGBA(bytes.NewReader([]byte("GIF89a")), 0); err == nil {
		t.Error("decodeRGBA() accepted a truncated image")
	}
}

func TestFSLoader(t *testing.T) {
	l := NewFSLoader(fstest.MapFS{"ui/x.txt": {Data: []byte("hello")}})

	rc, err := l.Open("ui/../ui/x.txt")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Errorf("read %q, want hello", data)
	}

	for _, p := range []string{"../x.txt", "/ui/x.txt"} {
		if _, err := l.Open(p); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Open(%q) error = %v, want ErrInvalidPath", p, err)
		}
	}
}
