// Copyright 2024-2026 Aiku AI

package gateway

import (
	"encoding/base64"
	"strings"
	"testing"
)

// TestRenderQRDataURI verifies the rendering produces an embeddable PNG data
// URI.
func TestRenderQRDataURI(t *testing.T) {
	t.Parallel()
	uri, err := RenderQRDataURI("abc")
	if err != nil {
		t.Fatalf("RenderQRDataURI failed: %v", err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("unexpected prefix: %q", uri[:min(len(uri), 30)])
	}
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	// PNG magic bytes.
	if len(png) < 8 || png[0] != 0x89 || string(png[1:4]) != "PNG" {
		t.Error("payload is not a PNG image")
	}
}

// TestRenderQRDataURI_DiffersPerCode verifies distinct codes render distinct
// images.
func TestRenderQRDataURI_DiffersPerCode(t *testing.T) {
	t.Parallel()
	a, err := RenderQRDataURI("code-a")
	if err != nil {
		t.Fatalf("render a: %v", err)
	}
	b, err := RenderQRDataURI("code-b")
	if err != nil {
		t.Fatalf("render b: %v", err)
	}
	if a == b {
		t.Error("different codes must not render identically")
	}
}
