// Package flash provides a file-backed block device, so the simulator keeps
// its LittleFS store between runs the way the Pico W keeps it on flash.
package flash

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"tinygo.org/x/tinyfs"
)

var ErrOutOfRange = errors.New("flash: access out of range")

// File is a tinyfs.BlockDevice stored in a regular file. Erased bytes read
// as 0xFF.
type File struct {
	f          *os.File
	pageSize   int64
	blockSize  int64
	blockCount int64
}

var _ tinyfs.BlockDevice = (*File)(nil)

// Open opens or creates the image at path. A new or short image is padded
// with erased blocks up to blockSize*blockCount bytes.
func Open(path string, pageSize, blockSize, blockCount int) (*File, error) {
	if pageSize <= 0 || blockSize <= 0 || blockCount <= 0 || blockSize%pageSize != 0 {
		return nil, fmt.Errorf("flash: invalid geometry %d/%d/%d", pageSize, blockSize, blockCount)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	d := &File{
		f:          f,
		pageSize:   int64(pageSize),
		blockSize:  int64(blockSize),
		blockCount: int64(blockCount),
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() > d.Size() {
		f.Close()
		return nil, fmt.Errorf("flash: %s is larger than %d bytes", path, d.Size())
	}
	if pad := d.Size() - st.Size(); pad > 0 {
		if _, err := f.WriteAt(bytes.Repeat([]byte{0xff}, int(pad)), st.Size()); err != nil {
			f.Close()
			return nil, err
		}
	}
	return d, nil
}

func (d *File) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(buf)) > d.Size() {
		return 0, ErrOutOfRange
	}
	n, err := d.f.ReadAt(buf, off)
	if err == io.EOF && n == len(buf) {
		err = nil
	}
	return n, err
}

func (d *File) WriteAt(buf []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(buf)) > d.Size() {
		return 0, ErrOutOfRange
	}
	return d.f.WriteAt(buf, off)
}

func (d *File) Size() int64 {
	return d.blockSize * d.blockCount
}

func (d *File) WriteBlockSize() int64 {
	return d.pageSize
}

func (d *File) EraseBlockSize() int64 {
	return d.blockSize
}

// EraseBlocks sets len blocks starting at block start back to 0xFF.
func (d *File) EraseBlocks(start, len int64) error {
	if start < 0 || len < 0 || start+len > d.blockCount {
		return ErrOutOfRange
	}
	blank := bytes.Repeat([]byte{0xff}, int(d.blockSize))
	for i := start; i < start+len; i++ {
		if _, err := d.f.WriteAt(blank, i*d.blockSize); err != nil {
			return err
		}
	}
	return nil
}

// Sync flushes the image to disk.
func (d *File) Sync() error {
	return d.f.Sync()
}

// Close syncs and closes the image.
func (d *File) Close() error {
	if err := d.f.Sync(); err != nil {
		d.f.Close()
		return err
	}
	return d.f.Close()
}
