package snapshot

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

// exerciseStore runs the contract every Store must satisfy.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrNotFound", err)
	}

	blob := []byte{0x01, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00}
	if err := s.Save(ctx, "b-room", blob); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, "a-room", []byte("first")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, "a-room", []byte("second")); err != nil {
		t.Fatalf("Save() overwrite error = %v", err)
	}

	got, err := s.Load(ctx, "b-room")
	if err != nil || !bytes.Equal(got, blob) {
		t.Errorf("Load() = %x, %v", got, err)
	}
	got, _ = s.Load(ctx, "a-room")
	if string(got) != "second" {
		t.Errorf("Load() after overwrite = %q", got)
	}

	names, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if want := []string{"a-room", "b-room"}; !reflect.DeepEqual(names, want) {
		t.Errorf("List() = %v, want %v", names, want)
	}

	if err := s.Delete(ctx, "a-room"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "a-room"); err != nil {
		t.Errorf("Delete() of missing name error = %v", err)
	}
	if _, err := s.Load(ctx, "a-room"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Delete error = %v", err)
	}

	if err := s.Save(ctx, "../escape", blob); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Save(../escape) error = %v, want ErrInvalidName", err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	s.Close()
	if err := s.Save(context.Background(), "x", nil); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Save() after Close error = %v", err)
	}
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "paintings"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestBoltStore(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "autosave.db"))
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, s)
	s.Close()
	if _, err := s.Load(context.Background(), "b-room"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Load() after Close error = %v, want ErrStoreClosed", err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		url     string
		want    string
		wantErr error
	}{
		{url: "", want: "*snapshot.MemoryStore"},
		{url: "memory:", want: "*snapshot.MemoryStore"},
		{url: "file://" + filepath.Join(dir, "f"), want: "*snapshot.FileStore"},
		{url: filepath.Join(dir, "plain"), want: "*snapshot.FileStore"},
		{url: "bolt://" + filepath.Join(dir, "db", "a.db"), want: "*snapshot.BoltStore"},
		{url: "ftp://host/x", wantErr: ErrUnsupportedScheme},
	}

	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			s, err := Open(context.Background(), tc.url)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("Open() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer s.Close()
			if got := reflect.TypeOf(s).String(); got != tc.want {
				t.Errorf("Open() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v", name, err)
		}
	}
	if err := ValidateName("room-1.autosave"); err != nil {
		t.Errorf("ValidateName() = %v", err)
	}
}
