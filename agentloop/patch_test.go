package agentloop

import (
	"reflect"
	"testing"
)

func TestDetectStripLevel(t *testing.T) {
	tests := []struct {
		name  string
		patch string
		want  int
	}{
		{"git header", "diff --git a/foo.go b/foo.go\n--- a/foo.go\n+++ b/foo.go\n", 1},
		{"ab prefixes only", "--- a/foo.go\n+++ b/foo.go\n@@ -1 +1 @@\n", 1},
		{"plain paths", "--- foo.go\n+++ foo.go\n@@ -1 +1 @@\n", 0},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectStripLevel(tt.patch); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestParsePatchChanges(t *testing.T) {
	patch := `diff --git a/new.go b/new.go
--- /dev/null
+++ b/new.go
@@ -0,0 +1 @@
+package main
diff --git a/old.go b/old.go
--- a/old.go
+++ /dev/null
@@ -1 +0,0 @@
-package main
diff --git a/mod.go b/mod.go
--- a/mod.go
+++ b/mod.go
@@ -1 +1 @@
-package main
+package main2
`
	want := []PatchChange{
		{Path: "new.go", Kind: "add"},
		{Path: "old.go", Kind: "delete"},
		{Path: "mod.go", Kind: "update"},
	}
	got := ParsePatchChanges(patch)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParsePatchChangesDeduplicates(t *testing.T) {
	patch := "--- a/foo.go\n+++ b/foo.go\n@@ -1 +1 @@\n--- a/foo.go\n+++ b/foo.go\n@@ -3 +3 @@\n"
	got := ParsePatchChanges(patch)
	if len(got) != 1 {
		t.Fatalf("expected 1 change, got %d", len(got))
	}
	if got[0].Path != "foo.go" || got[0].Kind != "update" {
		t.Errorf("unexpected change: %+v", got[0])
	}
}

func TestParsePatchChangesEmpty(t *testing.T) {
	got := ParsePatchChanges("not a patch at all")
	if got == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(got) != 0 {
		t.Errorf("expected no changes, got %v", got)
	}
}
