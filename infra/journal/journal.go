// Package journal is the append-only event log: every trade and order
// status change is framed with a length + CRC32 header and written to
// the current segment. Segments rotate by size or age and are listed in
// a JSON index; on reopen a torn tail is truncated at the last frame
// whose checksum verifies.
package journal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const frameHeaderSize = 8

type Config struct {
	Dir             string
	SegmentSize     uint64
	SegmentDuration time.Duration
}

type Journal struct {
	cfg             Config
	file            *os.File
	writer          *bufio.Writer
	seq             uint64
	segmentID       int
	segmentStartSeq uint64
	bytesWritten    uint64
	lastRotationAt  time.Time
}

func Open(cfg Config) (*Journal, error) {
	if cfg.SegmentSize == 0 {
		cfg.SegmentSize = 8 << 20
	}
	if cfg.SegmentDuration == 0 {
		cfg.SegmentDuration = time.Hour
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "journal dir")
	}

	var segID int
	var seq uint64
	if last, _ := LoadLastIndex(cfg.Dir); last != nil {
		id, _ := strconv.Atoi(strings.TrimSuffix(last.File, ".log"))
		segID = id
		seq = last.LastSeq
	}

	path := filepath.Join(cfg.Dir, "current.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "journal open")
	}

	j := &Journal{
		cfg:             cfg,
		file:            f,
		segmentID:       segID,
		segmentStartSeq: seq + 1,
		seq:             seq,
		lastRotationAt:  time.Now(),
	}
	if err := j.recoverCurrent(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := j.file.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return nil, err
	}
	j.writer = bufio.NewWriterSize(f, 1<<20)
	return j, nil
}

// Append assigns the next sequence number to rec and writes it. The
// frame reaches the OS on Sync or rotation, not per append.
func (j *Journal) Append(rec *Record) error {
	rec.Seq = j.seq + 1
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	recordSize := frameHeaderSize + len(data)
	if j.shouldRotate(recordSize) {
		if err := j.rotate(); err != nil {
			return err
		}
	}

	j.seq++
	if err := writeFrame(j.writer, data); err != nil {
		return err
	}
	j.bytesWritten += uint64(recordSize)
	return nil
}

// Seq is the sequence of the last appended record.
func (j *Journal) Seq() uint64 { return j.seq }

func (j *Journal) Sync() error {
	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Sync()
}

func (j *Journal) Close() error {
	_ = j.writer.Flush()
	_ = j.file.Sync()
	if err := j.file.Close(); err != nil {
		return err
	}
	return j.sealCurrent()
}

// Replay walks every sealed segment then the current one, in order.
func (j *Journal) Replay(fn func(*Record) error) error {
	if err := j.writer.Flush(); err != nil {
		return err
	}
	index, err := LoadAllIndex(j.cfg.Dir)
	if err != nil {
		return err
	}
	for _, e := range index {
		if err := replayFile(filepath.Join(j.cfg.Dir, e.File), fn); err != nil {
			return err
		}
	}
	return replayFile(filepath.Join(j.cfg.Dir, "current.log"), fn)
}

func replayFile(path string, fn func(*Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		payload, err := readFrame(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			// Torn or corrupt tail ends the replay of this file.
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, errBadChecksum) {
				return nil
			}
			return err
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func (j *Journal) shouldRotate(nextSize int) bool {
	return j.bytesWritten+uint64(nextSize) >= j.cfg.SegmentSize ||
		time.Since(j.lastRotationAt) >= j.cfg.SegmentDuration
}

func (j *Journal) rotate() error {
	_ = j.writer.Flush()
	_ = j.file.Sync()
	_ = j.file.Close()

	if err := j.sealCurrent(); err != nil {
		return err
	}

	path := filepath.Join(j.cfg.Dir, "current.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	j.file = f
	j.writer = bufio.NewWriterSize(f, 1<<20)
	j.segmentID++
	j.segmentStartSeq = j.seq + 1
	j.bytesWritten = 0
	j.lastRotationAt = time.Now()
	return nil
}

func (j *Journal) sealCurrent() error {
	newFile := fmt.Sprintf("%06d.log", j.segmentID+1)
	oldPath := filepath.Join(j.cfg.Dir, "current.log")
	newPath := filepath.Join(j.cfg.Dir, newFile)
	if err := os.Rename(oldPath, newPath); err != nil {
		return err
	}
	return AppendIndexEntry(j.cfg.Dir, IndexEntry{
		File:      newFile,
		FirstSeq:  j.segmentStartSeq,
		LastSeq:   j.seq,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// recoverCurrent scans current.log, restores seq, and truncates a torn
// tail so the next append lands on a clean frame boundary.
func (j *Journal) recoverCurrent() error {
	info, err := j.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}

	r, err := os.Open(filepath.Join(j.cfg.Dir, "current.log"))
	if err != nil {
		return err
	}
	defer r.Close()

	var validBytes int64
	br := bufio.NewReader(r)
	for {
		payload, err := readFrame(br)
		if err != nil {
			if err == io.EOF {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, errBadChecksum) {
				return j.truncateCurrent(validBytes)
			}
			return err
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return j.truncateCurrent(validBytes)
		}
		j.seq = rec.Seq
		validBytes += int64(frameHeaderSize + len(payload))
	}
	j.bytesWritten = uint64(validBytes)
	return nil
}

func (j *Journal) truncateCurrent(validBytes int64) error {
	if err := j.file.Truncate(validBytes); err != nil {
		return err
	}
	if _, err := j.file.Seek(validBytes, io.SeekStart); err != nil {
		return err
	}
	j.bytesWritten = uint64(validBytes)
	return nil
}

var errBadChecksum = errors.New("journal: frame checksum mismatch")

func writeFrame(wr io.Writer, payload []byte) error {
	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:], crc32.ChecksumIEEE(payload))
	if _, err := wr.Write(header[:]); err != nil {
		return err
	}
	_, err := wr.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	payloadLen := binary.LittleEndian.Uint32(header[:4])
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(header[4:]) {
		return nil, errBadChecksum
	}
	return payload, nil
}
