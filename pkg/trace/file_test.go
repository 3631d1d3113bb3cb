package trace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTrace(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write trace: %v", err)
	}
	return path
}

func TestLoadFileReplaysInOrder(t *testing.T) {
	path := writeTrace(t, "# frame trace\n0.0,50000\n0.016666667,48000\n\n0.033333333,52000\n")

	fs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if fs.Len() != 3 {
		t.Fatalf("Len = %d, want 3", fs.Len())
	}

	var prev time.Duration = -1
	for i := 0; i < 3; i++ {
		desc, err := fs.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if desc.Seq != uint64(i) {
			t.Fatalf("Seq = %d, want %d", desc.Seq, i)
		}
		if desc.ScheduledAt <= prev {
			t.Fatalf("ScheduledAt not increasing at %d: %v", i, desc.ScheduledAt)
		}
		prev = desc.ScheduledAt
	}
	if _, err := fs.Next(); !errors.Is(err, ErrTraceExhausted) {
		t.Fatalf("err = %v, want ErrTraceExhausted", err)
	}
}

func TestFileSourceReset(t *testing.T) {
	path := writeTrace(t, "0,1000\n0.5,2000\n")
	fs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	first, _ := fs.Next()
	fs.Next()
	if _, err := fs.Next(); !errors.Is(err, ErrTraceExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}

	fs.Reset()
	again, err := fs.Next()
	if err != nil {
		t.Fatalf("Next after Reset: %v", err)
	}
	if again != first {
		t.Fatalf("replay mismatch: %+v != %+v", again, first)
	}
}

func TestLoadFileMalformed(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"non-monotonic offsets", "0,100\n0.5,100\n0.3,100\n"},
		{"duplicate offset", "0,100\n0.5,100\n0.5,100\n"},
		{"zero size", "0,100\n0.5,0\n"},
		{"negative size", "0,-5\n"},
		{"negative offset", "-1,100\n"},
		{"garbage offset", "abc,100\n"},
		{"garbage size", "0,many\n"},
		{"missing field", "0.25\n"},
		{"empty trace", "# only comments\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTrace(t, tc.content)
			_, err := LoadFile(path)
			var malformed *MalformedTraceError
			if !errors.As(err, &malformed) {
				t.Fatalf("err = %v, want MalformedTraceError", err)
			}
		})
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	descs := []BurstDescriptor{
		{Seq: 0, ScheduledAt: 0, SizeBytes: 50000},
		{Seq: 1, ScheduledAt: 16*time.Millisecond + 666*time.Microsecond, SizeBytes: 47000},
		{Seq: 2, ScheduledAt: 33 * time.Millisecond, SizeBytes: 51234},
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := WriteFile(f, descs); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f.Close()

	fs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	for i, want := range descs {
		got, err := fs.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if got.SizeBytes != want.SizeBytes {
			t.Fatalf("size %d = %d, want %d", i, got.SizeBytes, want.SizeBytes)
		}
		if diff := got.ScheduledAt - want.ScheduledAt; diff < -time.Microsecond || diff > time.Microsecond {
			t.Fatalf("offset %d drifted by %v", i, diff)
		}
	}
}
