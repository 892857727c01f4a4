package persist

import (
	"io"
	"path/filepath"
	"testing"
)

type fakeState struct {
	value string
}

func (f *fakeState) Save(w io.Writer) error {
	_, err := io.WriteString(w, f.value)
	return err
}

func (f *fakeState) Restore(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.value = string(b)
	return nil
}

func TestSaveFileRestoreFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.txt")
	src := &fakeState{value: "hello world"}
	if err := SaveFile(path, src); err != nil {
		t.Fatal(err)
	}

	dst := &fakeState{}
	if err := RestoreFile(path, dst); err != nil {
		t.Fatal(err)
	}
	if dst.value != src.value {
		t.Fatalf("expected %q, got %q", src.value, dst.value)
	}
}
