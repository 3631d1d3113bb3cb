package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

type fileEntry struct {
	offset time.Duration
	size   uint32
}

// FileSource replays a recorded trace: CSV records of
// (offset_seconds, size_bytes) with strictly increasing offsets.
// Blank records and lines starting with '#' are skipped. The whole trace is
// validated and held in memory up front, so replay is restartable.
type FileSource struct {
	path    string
	entries []fileEntry
	nextIdx int
}

func LoadFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fs := &FileSource{path: path}
	if err := fs.load(f); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileSource) load(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	prev := time.Duration(-1)
	recordNum := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		recordNum++
		if err != nil {
			return &MalformedTraceError{Path: fs.path, Record: recordNum, Reason: err.Error()}
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) < 2 {
			return &MalformedTraceError{Path: fs.path, Record: recordNum, Reason: "expected (offset_seconds, size_bytes)"}
		}

		offsetSec, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			return &MalformedTraceError{Path: fs.path, Record: recordNum, Reason: fmt.Sprintf("bad offset %q", record[0])}
		}
		size, err := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64)
		if err != nil {
			return &MalformedTraceError{Path: fs.path, Record: recordNum, Reason: fmt.Sprintf("bad size %q", record[1])}
		}

		if offsetSec < 0 {
			return &MalformedTraceError{Path: fs.path, Record: recordNum, Reason: "negative offset"}
		}
		if size <= 0 {
			return &MalformedTraceError{Path: fs.path, Record: recordNum, Reason: "size must be positive"}
		}
		if size > int64(^uint32(0)) {
			return &MalformedTraceError{Path: fs.path, Record: recordNum, Reason: "size exceeds uint32"}
		}

		offset := time.Duration(offsetSec * float64(time.Second))
		if offset <= prev {
			return &MalformedTraceError{Path: fs.path, Record: recordNum, Reason: "offsets must be strictly increasing"}
		}
		prev = offset

		fs.entries = append(fs.entries, fileEntry{offset: offset, size: uint32(size)})
	}

	if len(fs.entries) == 0 {
		return &MalformedTraceError{Path: fs.path, Record: 0, Reason: "no bursts in trace"}
	}
	return nil
}

func (fs *FileSource) Next() (BurstDescriptor, error) {
	if fs.nextIdx >= len(fs.entries) {
		return BurstDescriptor{}, ErrTraceExhausted
	}
	e := fs.entries[fs.nextIdx]
	desc := BurstDescriptor{
		Seq:         uint64(fs.nextIdx),
		ScheduledAt: e.offset,
		SizeBytes:   e.size,
	}
	fs.nextIdx++
	return desc, nil
}

// Reset rewinds the trace to its first burst.
func (fs *FileSource) Reset() {
	fs.nextIdx = 0
}

// Len reports the number of bursts in the trace.
func (fs *FileSource) Len() int {
	return len(fs.entries)
}

// Duration reports the offset of the last burst.
func (fs *FileSource) Duration() time.Duration {
	if len(fs.entries) == 0 {
		return 0
	}
	return fs.entries[len(fs.entries)-1].offset
}

// WriteFile persists descriptors in the recorded trace format so a synthetic
// run can be replayed later with LoadFile.
func WriteFile(w io.Writer, descs []BurstDescriptor) error {
	cw := csv.NewWriter(w)
	for _, d := range descs {
		offset := strconv.FormatFloat(d.ScheduledAt.Seconds(), 'f', 9, 64)
		size := strconv.FormatUint(uint64(d.SizeBytes), 10)
		if err := cw.Write([]string{offset, size}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
