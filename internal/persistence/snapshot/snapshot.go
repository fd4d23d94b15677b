// Package snapshot stores a session at a tick: director state plus the world
// context it narrates. Files are zstd streams holding a JSON header line
// followed by a gob body.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"storylet.ai/internal/sim/director"
	"storylet.ai/internal/sim/worldctx"
)

const Version = 1

const suffix = ".snap.zst"

var (
	ErrVersion  = errors.New("snapshot: unsupported version")
	ErrMismatch = errors.New("snapshot: incompatible")
)

type Header struct {
	Version       int    `json:"version"`
	SessionID     string `json:"session_id"`
	Tick          uint64 `json:"tick"`
	ConfigVersion string `json:"config_version"`
	LibraryDigest string `json:"library_digest"`
	StateDigest   string `json:"state_digest"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Director director.State   `json:"director"`
	World    worldctx.Context `json:"world"`
}

// New captures st and a deep copy of w.
func New(sessionID string, st director.State, w *worldctx.Context, libraryDigest string) (SnapshotV1, error) {
	snap := SnapshotV1{
		Header: Header{
			Version:       Version,
			SessionID:     sessionID,
			Tick:          st.Tick,
			ConfigVersion: st.ConfigVersion,
			LibraryDigest: libraryDigest,
			StateDigest:   director.StateDigest(st),
		},
		Director: st.Clone(),
	}
	if w != nil {
		c, err := w.Clone()
		if err != nil {
			return snap, fmt.Errorf("world: %w", err)
		}
		snap.World = *c
	}
	return snap, nil
}

// Path names the snapshot file for tick under dir.
func Path(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", tick, suffix))
}

// Latest returns the highest-tick snapshot in dir, or "" when there is none.
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var ticks []uint64
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		t, err := strconv.ParseUint(strings.TrimSuffix(name, suffix), 10, 64)
		if err != nil {
			continue
		}
		ticks = append(ticks, t)
	}
	if len(ticks) == 0 {
		return ""
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	return Path(dir, ticks[len(ticks)-1])
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := enc.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return fmt.Errorf("header: %w", err)
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return bw.Flush()
}

func open(path string) (*os.File, *zstd.Decoder, *bufio.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, nil, err
	}
	return f, dec, bufio.NewReaderSize(dec, 256*1024), nil
}

func readHeader(br *bufio.Reader) (Header, error) {
	var h Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	return h, nil
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	f, dec, br, err := open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	defer dec.Close()
	return readHeader(br)
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, dec, br, err := open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()
	defer dec.Close()

	if _, err := readHeader(br); err != nil {
		return snap, err
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// Verify reports whether the director state still hashes to the digest in the
// header.
func (s SnapshotV1) Verify() bool {
	return director.StateDigest(s.Director) == s.Header.StateDigest
}

// CheckCompatible rejects a snapshot that cannot continue under the given
// tuning and storylet library, or whose director state was altered.
func (s SnapshotV1) CheckCompatible(configVersion, libraryDigest string) error {
	h := s.Header
	switch {
	case h.ConfigVersion != configVersion:
		return fmt.Errorf("%w: config version snap=%s current=%s", ErrMismatch, h.ConfigVersion, configVersion)
	case h.LibraryDigest != libraryDigest:
		return fmt.Errorf("%w: library digest snap=%s current=%s", ErrMismatch, h.LibraryDigest, libraryDigest)
	case !s.Verify():
		return fmt.Errorf("%w: state digest does not match director state", ErrMismatch)
	}
	return nil
}
