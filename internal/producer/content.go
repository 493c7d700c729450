package producer

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/Hiro-Washi/da-icn/internal/bufpool"
)

// DefaultContentSize is the size of the generated dummy file (100 MiB).
const DefaultContentSize int64 = 100 * 1024 * 1024

// Fill selects how EnsureDummyFile fills a new file.
type Fill string

const (
	FillZero   Fill = "zero"
	FillRandom Fill = "random"
)

// ParseFill accepts "zero" or "random"; empty means zero.
func ParseFill(s string) (Fill, error) {
	switch Fill(s) {
	case "", FillZero:
		return FillZero, nil
	case FillRandom:
		return FillRandom, nil
	default:
		return "", fmt.Errorf("unknown fill %q (want zero or random)", s)
	}
}

// EnsureDummyFile creates path with size bytes unless a file of exactly that
// size already exists. It reports whether the file was (re)written.
func EnsureDummyFile(path string, size int64, fill Fill) (bool, error) {
	if size < 0 {
		return false, fmt.Errorf("invalid content size %d", size)
	}
	info, err := os.Stat(path)
	if err == nil && info.Mode().IsRegular() && info.Size() == size {
		return false, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}
	var src io.Reader = zeroReader{}
	if fill == FillRandom {
		src = rand.NewChaCha8([32]byte{'d', 'a', '-', 'i', 'c', 'n'})
	}
	if _, err := io.CopyN(f, src, size); err != nil {
		f.Close()
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", path, err)
	}
	return true, nil
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// Content serves fixed-size chunks of a file.
type Content struct {
	r         io.ReaderAt
	closer    io.Closer
	size      int64
	chunkSize int
	total     uint32
	pool      *bufpool.Pool
}

// OpenContent opens path for chunked reads.
func OpenContent(path string, chunkSize int) (*Content, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open content: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat content: %w", err)
	}
	c, err := NewContent(f, info.Size(), chunkSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.closer = f
	return c, nil
}

// NewContent serves size bytes of r in chunkSize pieces.
func NewContent(r io.ReaderAt, size int64, chunkSize int) (*Content, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}
	total := (size + int64(chunkSize) - 1) / int64(chunkSize)
	if total > int64(^uint32(0)) {
		return nil, fmt.Errorf("content of %d bytes exceeds %d chunks", size, ^uint32(0))
	}
	return &Content{
		r:         r,
		size:      size,
		chunkSize: chunkSize,
		total:     uint32(total),
		pool:      bufpool.New(chunkSize),
	}, nil
}

// TotalChunks returns ceil(size/chunkSize).
func (c *Content) TotalChunks() uint32 { return c.total }

// ChunkSize returns the configured chunk size.
func (c *Content) ChunkSize() int { return c.chunkSize }

// Size returns the content length in bytes.
func (c *Content) Size() int64 { return c.size }

// Chunk reads chunk i into a pooled buffer. The caller must hand the buffer
// back with Release. The last chunk may be short.
func (c *Content) Chunk(i uint32) (*[]byte, error) {
	if i >= c.total {
		return nil, fmt.Errorf("chunk %d out of range [0,%d)", i, c.total)
	}
	buf := c.pool.Get()
	off := int64(i) * int64(c.chunkSize)
	n, err := c.r.ReadAt(*buf, off)
	if err != nil && !(errors.Is(err, io.EOF) && off+int64(n) == c.size) {
		c.pool.Put(buf)
		return nil, fmt.Errorf("read chunk %d: %w", i, err)
	}
	*buf = (*buf)[:n]
	return buf, nil
}

// Release returns a buffer obtained from Chunk.
func (c *Content) Release(buf *[]byte) {
	if buf == nil {
		return
	}
	*buf = (*buf)[:cap(*buf)]
	c.pool.Put(buf)
}

// Close releases the underlying file, if Content opened one.
func (c *Content) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
