package web

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"
)

func TestRenderer(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	data := map[string]interface{}{"Page": "index", "Title": "Home", "APIPrefix": "/api"}
	if err := r.Render(&buf, "index", data, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "<title>Home | Aitector</title>") {
		t.Errorf("Expected layout title, got %s", buf.String())
	}

	if err := r.Render(&buf, "missing", data, nil); err == nil {
		t.Error("Expected error for unknown page")
	}
}

func TestStatic(t *testing.T) {
	for _, name := range []string{"app.js", "app.css"} {
		if _, err := fs.Stat(Static(), name); err != nil {
			t.Errorf("Expected embedded %s: %v", name, err)
		}
	}
}
