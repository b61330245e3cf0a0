package sandbox

import "testing"

func TestCatalogNormalize(t *testing.T) {
	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog failed: %v", err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"node", "node"},
		{"NODE", "node"},
		{"typescript", "node"},
		{"nextjs", "node"},
		{"python3", "python"},
		{"golang", "go"},
		{"rails", "ruby"},
		{"", "universal"},
		{"cobol", "universal"},
	}

	for _, tt := range tests {
		if got := catalog.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCatalogPorts(t *testing.T) {
	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog failed: %v", err)
	}

	if port := catalog.DefaultPort("node"); port != 3000 {
		t.Errorf("node port = %d, want 3000", port)
	}
	if port := catalog.DefaultPort("flask"); port != 8000 {
		t.Errorf("flask port = %d, want 8000", port)
	}

	name, spec := catalog.ImageFor("react")
	if name != "node" {
		t.Errorf("react should resolve to node, got %s", name)
	}
	if spec.Ref == "" {
		t.Error("expected non-empty image ref")
	}
}
