package compression

import (
	"bytes"
	"testing"
)

func TestCompressMessageRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"model":"Transaction","Event":{"OrderState":"Closed"}}`), 20)

	for _, ct := range []CompressionType{None, Gzip, Snappy, Zstd} {
		t.Run(ct.String(), func(t *testing.T) {
			packed, err := CompressMessage(payload, ct)
			if err != nil {
				t.Fatalf("compress failed: %v", err)
			}
			if CompressionType(packed[0]) != ct {
				t.Errorf("expected header %d, got %d", ct, packed[0])
			}

			out, err := DecompressMessage(packed)
			if err != nil {
				t.Fatalf("decompress failed: %v", err)
			}
			if !bytes.Equal(out, payload) {
				t.Errorf("round trip mismatch for %s", ct)
			}
		})
	}
}

func TestDecompressMessageRejectsShortInput(t *testing.T) {
	if _, err := DecompressMessage([]byte{1, 0}); err == nil {
		t.Error("expected error for short input")
	}
}

func TestDecompressMessageLengthMismatch(t *testing.T) {
	packed, err := CompressMessage([]byte("hello"), None)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	packed[4] = 9
	if _, err := DecompressMessage(packed); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestParseType(t *testing.T) {
	tests := map[string]CompressionType{"": None, "none": None, "Snappy": Snappy, " zstd ": Zstd, "gzip": Gzip}
	for in, want := range tests {
		got, err := ParseType(in)
		if err != nil {
			t.Fatalf("ParseType(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseType(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseType("lz4"); err == nil {
		t.Error("expected error for lz4")
	}
}
