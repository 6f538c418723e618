// Package store persists the last rendered payload on flash using LittleFS,
// so the device can put it back on the display after a reboot.
package store

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path"
	"strings"

	"tinygo.org/x/tinyfs"
	"tinygo.org/x/tinyfs/littlefs"
)

const (
	dataDir    = "/nami"
	lastFile   = "/nami/last.bin"
	tempSuffix = ".tmp"

	// MaxPayload is the largest payload kept.
	MaxPayload = 16 << 10

	version byte = 1
)

var magic = [4]byte{'N', 'A', 'M', 'I'}

var (
	ErrNotFound     = errors.New("store: nothing saved")
	ErrCorrupt      = errors.New("store: invalid saved data")
	ErrTooLarge     = errors.New("store: payload too large")
	ErrEmptyPayload = errors.New("store: empty payload")
)

// Store keeps the last payload in a LittleFS filesystem.
type Store struct {
	fs      *littlefs.LFS
	mounted bool
	last    []byte
}

// New mounts the filesystem on blockDev and removes temporary files left by
// interrupted writes. If format is true and mount fails, the device is
// formatted.
func New(blockDev tinyfs.BlockDevice, format bool) (*Store, error) {
	lfs := littlefs.New(blockDev)
	lfs.Configure(&littlefs.Config{
		CacheSize:     512,
		LookaheadSize: 128,
	})

	if err := lfs.Mount(); err != nil {
		if !format {
			return nil, err
		}
		if err := lfs.Format(); err != nil {
			return nil, err
		}
		if err := lfs.Mount(); err != nil {
			return nil, err
		}
	}

	s := &Store{fs: lfs, mounted: true}
	s.bootCleanup()
	return s, nil
}

// Close unmounts the filesystem.
func (s *Store) Close() error {
	if s.mounted {
		s.mounted = false
		return s.fs.Unmount()
	}
	return nil
}

// SaveLast stores raw as the last payload. Saving the payload already
// stored is a no-op, which spares the flash when the peer repeats itself.
func (s *Store) SaveLast(raw []byte) error {
	if len(raw) == 0 {
		return ErrEmptyPayload
	}
	if len(raw) > MaxPayload {
		return ErrTooLarge
	}
	if s.last != nil && bytes.Equal(s.last, raw) {
		return nil
	}
	if err := s.ensureDir(); err != nil {
		return err
	}

	data := make([]byte, 0, len(magic)+1+len(raw))
	data = append(data, magic[:]...)
	data = append(data, version)
	data = append(data, raw...)
	if err := s.atomicWrite(lastFile, data); err != nil {
		return err
	}
	s.last = append(s.last[:0], raw...)
	return nil
}

// LoadLast returns the last stored payload.
func (s *Store) LoadLast() ([]byte, error) {
	f, err := s.fs.Open(lastFile)
	if err != nil {
		if isNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer f.Close()

	data, err := readAll(f, MaxPayload+len(magic)+2)
	if err != nil {
		return nil, err
	}
	hdr := len(magic) + 1
	if len(data) <= hdr || !bytes.Equal(data[:len(magic)], magic[:]) || data[len(magic)] != version {
		return nil, ErrCorrupt
	}
	if len(data)-hdr > MaxPayload {
		return nil, ErrCorrupt
	}
	raw := data[hdr:]
	s.last = append(s.last[:0], raw...)
	return raw, nil
}

// readAll reads up to limit bytes, stopping at the first empty read.
func readAll(r io.Reader, limit int) ([]byte, error) {
	data := make([]byte, 0, 512)
	buf := make([]byte, 256)
	for len(data) < limit {
		n, err := r.Read(buf[:min(len(buf), limit-len(data))])
		data = append(data, buf[:n]...)
		if err == io.EOF || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Clear forgets the stored payload.
func (s *Store) Clear() error {
	s.last = nil
	if err := s.fs.Remove(lastFile); err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

// bootCleanup removes temporary files left over from interrupted writes.
func (s *Store) bootCleanup() {
	f, err := s.fs.Open(dataDir)
	if err != nil {
		return
	}
	defer f.Close()
	if !f.IsDir() {
		return
	}
	entries, err := f.Readdir(-1)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), tempSuffix) {
			s.fs.Remove(path.Join(dataDir, entry.Name()))
		}
	}
}

func (s *Store) ensureDir() error {
	if err := s.fs.Mkdir(dataDir, 0755); err != nil && !isExist(err) {
		return err
	}
	return nil
}

// atomicWrite writes data to a temporary file, syncs it, then renames.
// The target file is never left partially written.
func (s *Store) atomicWrite(filepath string, data []byte) error {
	tempPath := filepath + tempSuffix
	s.fs.Remove(tempPath)

	f, err := s.fs.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.fs.Remove(tempPath)
		return err
	}
	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			f.Close()
			s.fs.Remove(tempPath)
			return err
		}
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tempPath)
		return err
	}

	// LittleFS rename does not replace an existing file.
	s.fs.Remove(filepath)
	if err := s.fs.Rename(tempPath, filepath); err != nil {
		s.fs.Remove(tempPath)
		return err
	}
	return nil
}

// isExist checks for "already exists"; LittleFS errors do not always
// satisfy os.IsExist.
func isExist(err error) bool {
	if err == nil {
		return false
	}
	return os.IsExist(err) || strings.Contains(err.Error(), "already exists")
}

func isNotExist(err error) bool {
	if err == nil {
		return false
	}
	return os.IsNotExist(err) || strings.Contains(err.Error(), "No directory entry")
}
