package policyfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRead_Missing(t *testing.T) {
	snap, err := Read(filepath.Join(t.TempDir(), "sudoers"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if snap.Existed {
		t.Error("Existed: got true, want false")
	}
	if len(snap.Content) != 0 {
		t.Errorf("Content: got %q, want empty", snap.Content)
	}
}

func TestRead_Existing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sudoers")
	if err := os.WriteFile(path, []byte("root ALL=(ALL:ALL) ALL\n"), 0o440); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !snap.Existed {
		t.Error("Existed: got false, want true")
	}
	if got, want := string(snap.Content), "root ALL=(ALL:ALL) ALL\n"; got != want {
		t.Errorf("Content: got %q, want %q", got, want)
	}
}

func TestOwner_String(t *testing.T) {
	if got, want := Root.String(), "(0, 0)"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
