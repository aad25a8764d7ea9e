package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/intentsim/bloomcascade/internal/simulation"
	"github.com/intentsim/bloomcascade/internal/store"
)

// FormatVersion is the archive format written by Write.
const FormatVersion = 1

// Ext is the file extension of run archives.
const Ext = ".bloom.gz"

// MaxDecompressedSize is the maximum allowed size of decompressed archive data (200MB).
const MaxDecompressedSize = 200 * 1024 * 1024

// ErrChecksum is returned when an archive's payload does not match its
// header checksum.
var ErrChecksum = errors.New("archive checksum mismatch")

// Header is the plain-text first line of an archive file.
type Header struct {
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	Checksum    string    `json:"checksum"`
	RunID       string    `json:"run_id"`
	Name        string    `json:"name"`
	Step        int       `json:"step"`
	Agents      int       `json:"agents"`
	Connections int       `json:"connections"`
	Snapshots   int       `json:"snapshots"`
}

// Archive is the compressed payload: a stored run and its full state.
type Archive struct {
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	Run       store.Run         `json:"run"`
	State     *simulation.State `json:"state"`
}

// Write writes a as header line + gzip-compressed JSON payload and
// returns the header.
func Write(path string, a *Archive) (*Header, error) {
	if a.State == nil {
		return nil, errors.New("archive has no state")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}

	header := &Header{
		Version:     a.Version,
		CreatedAt:   a.CreatedAt,
		Checksum:    checksum(compressed.Bytes()),
		RunID:       a.Run.ID,
		Name:        a.Run.Name,
		Step:        a.State.Step,
		Agents:      len(a.State.Agents),
		Connections: len(a.State.Connections),
		Snapshots:   len(a.State.History),
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	w.Write(headerBytes)
	w.WriteByte('\n')
	w.Write(compressed.Bytes())
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("writing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return header, nil
}

// Read reads an archive, verifies the checksum and decompresses the
// payload.
func Read(path string) (*Archive, error) {
	_, compressed, err := open(path)
	if err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	var a Archive
	if err := json.Unmarshal(decompressed, &a); err != nil {
		return nil, fmt.Errorf("parsing archive data: %w", err)
	}
	if a.State == nil {
		return nil, errors.New("archive has no state")
	}
	return &a, nil
}

// ReadHeader reads only the header line without decompressing.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return readHeader(bufio.NewReader(f))
}

// VerifyChecksum checks the integrity of an archive without decompressing.
func VerifyChecksum(path string) error {
	_, _, err := open(path)
	return err
}

// open reads the header and the checksum-verified compressed payload.
func open(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := readHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	if actual := checksum(compressed); actual != header.Checksum {
		return nil, nil, fmt.Errorf("%w: expected %s, got %s", ErrChecksum, header.Checksum, actual)
	}
	return header, compressed, nil
}

func readHeader(r *bufio.Reader) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported archive version %d", header.Version)
	}
	return &header, nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
