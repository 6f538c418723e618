package store

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"tinygo.org/x/tinyfs"
)

func newTestStore(t *testing.T) (*Store, *tinyfs.MemBlockDevice) {
	// 256 byte pages, 4096 byte blocks, 64 blocks = 256KB of flash
	blockDev := tinyfs.NewMemoryDevice(256, 4096, 64)

	s, err := New(blockDev, true)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s, blockDev
}

func TestLoadEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	if _, err := s.LoadLast(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	payload := []byte(`{"type":"pokemon_bitmap","data":{"pokemonId":25}}`)
	if err := s.SaveLast(payload); err != nil {
		t.Fatalf("SaveLast failed: %v", err)
	}
	got, err := s.LoadLast()
	if err != nil {
		t.Fatalf("LoadLast failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Expected %q, got %q", payload, got)
	}

	if err := s.SaveLast([]byte("Hello")); err != nil {
		t.Fatalf("SaveLast failed: %v", err)
	}
	got, _ = s.LoadLast()
	if string(got) != "Hello" {
		t.Errorf("Expected the newer payload, got %q", got)
	}
}

func TestPersistsAcrossRemount(t *testing.T) {
	s, dev := newTestStore(t)
	if err := s.SaveLast([]byte("survives reboot")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := New(dev, false)
	if err != nil {
		t.Fatalf("Remount failed: %v", err)
	}
	defer s2.Close()
	got, err := s2.LoadLast()
	if err != nil {
		t.Fatalf("LoadLast failed: %v", err)
	}
	if string(got) != "survives reboot" {
		t.Errorf("Expected persisted payload, got %q", got)
	}
}

func TestSaveRejects(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	if err := s.SaveLast(nil); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("Expected ErrEmptyPayload, got %v", err)
	}
	if err := s.SaveLast(make([]byte, MaxPayload+1)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Expected ErrTooLarge, got %v", err)
	}
}

func TestClear(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	s.SaveLast([]byte("Hello"))
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := s.LoadLast(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after Clear, got %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Errorf("Expected Clear on an empty store to succeed, got %v", err)
	}

	// The in-memory copy is gone too, so the same payload is written again.
	if err := s.SaveLast([]byte("Hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadLast(); err != nil {
		t.Errorf("Expected payload saved after Clear, got %v", err)
	}
}

func TestCorruptFile(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	if err := s.ensureDir(); err != nil {
		t.Fatal(err)
	}
	if err := s.atomicWrite(lastFile, []byte("garbage")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadLast(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt, got %v", err)
	}
}

func TestBootCleanupRemovesTempFiles(t *testing.T) {
	s, dev := newTestStore(t)
	if err := s.ensureDir(); err != nil {
		t.Fatal(err)
	}
	f, err := s.fs.OpenFile(lastFile+tempSuffix, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("half written"))
	f.Close()
	s.Close()

	s2, err := New(dev, false)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if _, err := s2.fs.Open(lastFile + tempSuffix); err == nil {
		t.Error("Expected the temporary file to be removed at mount")
	}
}
