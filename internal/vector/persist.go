package vector

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/hyperjump/shiori/internal/models"
)

// File layout, little-endian:
//
//	magic "SHIORIVX" | version u16 | dimension u32 | metric u8 | count u64
//	vector block: length u64, then count*dimension f32
//	metadata block: length u64, then count records of
//	  id u64 | source (u32 len + bytes) | page i64 | char_start i64 | char_end i64 | text (u32 len + bytes)
//	crc32 (IEEE) of everything above, u32
const (
	fileMagic   = "SHIORIVX"
	fileVersion = uint16(1)
	headerSize  = len(fileMagic) + 2 + 4 + 1 + 8
)

// Save writes the current snapshot to path through a temporary file that is
// renamed into place. Writers are not blocked while the file is written.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return fmt.Errorf("save index: empty path")
	}
	s := m.snap.Load()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := encode(bw, s, m.dimension, MetricCosine); err != nil {
		tmp.Close()
		return fmt.Errorf("write index: %w", err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename index: %w", err)
	}
	return nil
}

// Load replaces the index contents with the file at path. The file is fully
// read and validated before the swap; on any error the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	s, dim, err := readFile(path)
	if err != nil {
		return err
	}
	if dim != m.dimension {
		return fmt.Errorf("%w: file dimension %d, index dimension %d: %w",
			ErrIndexCorrupt, dim, m.dimension, ErrDimensionMismatch)
	}
	m.mu.Lock()
	m.snap.Store(s)
	m.mu.Unlock()
	return nil
}

// LoadFile builds a new index from the file at path, taking the dimension
// from the file header.
func LoadFile(path string) (*MemoryIndex, error) {
	s, dim, err := readFile(path)
	if err != nil {
		return nil, err
	}
	m := &MemoryIndex{dimension: dim}
	m.snap.Store(s)
	return m, nil
}

func readFile(path string) (*snapshot, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read index file: %w", err)
	}
	s, dim, err := decode(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %v", ErrIndexCorrupt, path, err)
	}
	return s, dim, nil
}

func encode(w io.Writer, s *snapshot, dim int, metric Metric) error {
	crc := crc32.NewIEEE()
	mw := io.MultiWriter(w, crc)
	var scratch [8]byte

	n := len(s.ids)
	header := make([]byte, 0, headerSize)
	header = append(header, fileMagic...)
	header = binary.LittleEndian.AppendUint16(header, fileVersion)
	header = binary.LittleEndian.AppendUint32(header, uint32(dim))
	header = append(header, byte(metric))
	header = binary.LittleEndian.AppendUint64(header, uint64(n))
	if _, err := mw.Write(header); err != nil {
		return err
	}

	binary.LittleEndian.PutUint64(scratch[:], uint64(n*dim*4))
	if _, err := mw.Write(scratch[:]); err != nil {
		return err
	}
	row := make([]byte, dim*4)
	for i := 0; i < n; i++ {
		for j, v := range s.row(i, dim) {
			binary.LittleEndian.PutUint32(row[j*4:], math.Float32bits(v))
		}
		if _, err := mw.Write(row); err != nil {
			return err
		}
	}

	var meta bytes.Buffer
	for i, id := range s.ids {
		md := s.meta[i]
		b := meta.AvailableBuffer()
		b = binary.LittleEndian.AppendUint64(b, id)
		b = appendString(b, md.Source)
		b = binary.LittleEndian.AppendUint64(b, uint64(int64(md.Page)))
		b = binary.LittleEndian.AppendUint64(b, uint64(int64(md.CharStart)))
		b = binary.LittleEndian.AppendUint64(b, uint64(int64(md.CharEnd)))
		b = appendString(b, md.Text)
		meta.Write(b)
	}
	binary.LittleEndian.PutUint64(scratch[:], uint64(meta.Len()))
	if _, err := mw.Write(scratch[:]); err != nil {
		return err
	}
	if _, err := mw.Write(meta.Bytes()); err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(scratch[:4], crc.Sum32())
	_, err := w.Write(scratch[:4])
	return err
}

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

// decoder reads fixed-width fields from a byte slice and remembers the first
// short read.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.err = fmt.Errorf("unexpected end of data at offset %d (need %d bytes)", d.off, n)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if b := d.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (d *decoder) str() string {
	n := d.u32()
	return string(d.take(int(n)))
}

func decode(data []byte) (*snapshot, int, error) {
	if len(data) < headerSize+8+8+4 {
		return nil, 0, fmt.Errorf("file too short (%d bytes)", len(data))
	}
	body, sum := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != sum {
		return nil, 0, fmt.Errorf("checksum mismatch")
	}

	d := &decoder{buf: body}
	if string(d.take(len(fileMagic))) != fileMagic {
		return nil, 0, fmt.Errorf("bad magic")
	}
	if v := d.u16(); v != fileVersion {
		return nil, 0, fmt.Errorf("unsupported format version %d", v)
	}
	dim := int(d.u32())
	if dim <= 0 {
		return nil, 0, fmt.Errorf("invalid dimension %d", dim)
	}
	if m := Metric(d.u8()); m != MetricCosine {
		return nil, 0, fmt.Errorf("unknown metric %d", m)
	}
	count := d.u64()

	vecLen := d.u64()
	if count > uint64(len(body))/uint64(dim*4) || vecLen != count*uint64(dim)*4 {
		return nil, 0, fmt.Errorf("vector block is %d bytes, want %d entries of dimension %d", vecLen, count, dim)
	}
	n := int(count)
	raw := d.take(int(vecLen))
	if d.err != nil {
		return nil, 0, d.err
	}
	vectors := make([]float32, n*dim)
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	if !finite(vectors) {
		return nil, 0, fmt.Errorf("vector block contains NaN or Inf")
	}

	metaLen := d.u64()
	if d.err != nil {
		return nil, 0, d.err
	}
	if metaLen != uint64(len(body)-d.off) {
		return nil, 0, fmt.Errorf("metadata block is %d bytes, %d remain", metaLen, len(body)-d.off)
	}
	s := &snapshot{
		ids:     make([]uint64, 0, n),
		vectors: vectors,
		meta:    make([]models.ChunkMetadata, 0, n),
	}
	for i := 0; i < n; i++ {
		id := d.u64()
		md := models.ChunkMetadata{Source: d.str()}
		md.Page = int(int64(d.u64()))
		md.CharStart = int(int64(d.u64()))
		md.CharEnd = int(int64(d.u64()))
		md.Text = d.str()
		if d.err != nil {
			return nil, 0, fmt.Errorf("metadata record %d: %v", i, d.err)
		}
		if i > 0 && id <= s.ids[i-1] {
			return nil, 0, fmt.Errorf("metadata record %d: id %d not increasing", i, id)
		}
		if md.Page < 0 || md.CharStart < 0 || md.CharEnd < md.CharStart {
			return nil, 0, fmt.Errorf("metadata record %d: invalid position page=%d [%d,%d)", i, md.Page, md.CharStart, md.CharEnd)
		}
		s.ids = append(s.ids, id)
		s.meta = append(s.meta, md)
	}
	if d.off != len(body) {
		return nil, 0, fmt.Errorf("%d trailing bytes after metadata block", len(body)-d.off)
	}
	if n > 0 {
		s.nextID = s.ids[n-1] + 1
	}
	return s, dim, nil
}
