package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Stand in for the PY25Q16 SPI flash on a host.
 *
 * Description:	2 MB, 4K erase sectors, erased state 0xFF.
 *
 *		Like the real driver, writes land in a one sector cache
 *		which is only erased and programmed into the array when
 *		the caller says the region is finished, when a write moves
 *		to another sector, or on Sync.  Counting those commits
 *		lets tests see that the "end" hint from the translator is
 *		doing its job.
 *
 *		The array can optionally be backed by an image file so
 *		the CLI can send from, and receive into, something real.
 *
 *------------------------------------------------------------------*/

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	FlashSize       = 2 * 1024 * 1024
	FlashSectorSize = 4096
)

var ErrFlashRange = errors.New("flash address out of range")

// FlashImage is an emulated flash part.
type FlashImage struct {
	mu sync.Mutex

	data []byte
	file *os.File // nil for memory only

	cache      [FlashSectorSize]byte
	cacheAddr  uint32 // Sector base, only meaningful when cacheDirty.
	cacheDirty bool

	commits int
}

// NewMemFlash returns an erased flash held in memory.
func NewMemFlash() *FlashImage {
	return &FlashImage{data: bytes.Repeat([]byte{0xFF}, FlashSize)}
}

// OpenFlashImage loads path, creating an erased image if it does not exist.
// Short files are padded with 0xFF.
func OpenFlashImage(path string) (*FlashImage, error) {
	var f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	var fl = NewMemFlash()
	var n, readErr = io.ReadFull(f, fl.data)
	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		f.Close()
		return nil, fmt.Errorf("read flash image %s: %w", path, readErr)
	}

	if n < FlashSize {
		if _, err := f.WriteAt(fl.data[n:], int64(n)); err != nil {
			f.Close()
			return nil, fmt.Errorf("extend flash image %s: %w", path, err)
		}
	}

	fl.file = f

	return fl, nil
}

func (fl *FlashImage) check(addr uint32, n int) error {
	if uint64(addr)+uint64(n) > FlashSize {
		return fmt.Errorf("0x%06X+%d: %w", addr, n, ErrFlashRange)
	}
	return nil
}

// ReadBuffer sees pending cached writes.
func (fl *FlashImage) ReadBuffer(addr uint32, buf []byte) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if err := fl.check(addr, len(buf)); err != nil {
		return err
	}

	copy(buf, fl.data[addr:])

	if fl.cacheDirty {
		// Overlay whatever part of the cached sector we cover.
		var lo = max(addr, fl.cacheAddr)
		var hi = min(addr+uint32(len(buf)), fl.cacheAddr+FlashSectorSize)
		if lo < hi {
			copy(buf[lo-addr:hi-addr], fl.cache[lo-fl.cacheAddr:hi-fl.cacheAddr])
		}
	}

	return nil
}

// WriteBuffer may span sectors; each piece goes through the cache.
func (fl *FlashImage) WriteBuffer(addr uint32, buf []byte, end bool) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if err := fl.check(addr, len(buf)); err != nil {
		return err
	}

	for len(buf) > 0 {
		var sector = addr &^ (FlashSectorSize - 1)
		var off = addr - sector
		var n = min(uint32(len(buf)), FlashSectorSize-off)

		if fl.cacheDirty && fl.cacheAddr != sector {
			if err := fl.commitLocked(); err != nil {
				return err
			}
		}
		if !fl.cacheDirty {
			copy(fl.cache[:], fl.data[sector:sector+FlashSectorSize])
			fl.cacheAddr = sector
			fl.cacheDirty = true
		}

		copy(fl.cache[off:off+n], buf[:n])

		addr += n
		buf = buf[n:]
	}

	if end {
		return fl.commitLocked()
	}

	return nil
}

// Sync commits any cached sector.
func (fl *FlashImage) Sync() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	return fl.commitLocked()
}

// Commits is the number of sector erase/program cycles so far.
func (fl *FlashImage) Commits() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	return fl.commits
}

// Close syncs and releases the image file, if any.
func (fl *FlashImage) Close() error {
	var err = fl.Sync()

	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file != nil {
		err = errors.Join(err, fl.file.Close())
		fl.file = nil
	}

	return err
}

func (fl *FlashImage) commitLocked() error {
	if !fl.cacheDirty {
		return nil
	}

	var sector = fl.cacheAddr
	copy(fl.data[sector:sector+FlashSectorSize], fl.cache[:])
	fl.cacheDirty = false
	fl.commits++

	if fl.file != nil {
		if _, err := fl.file.WriteAt(fl.cache[:], int64(sector)); err != nil {
			return fmt.Errorf("write flash image sector 0x%06X: %w", sector, err)
		}
	}

	return nil
}
