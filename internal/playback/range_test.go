package playback

import (
	"errors"
	"fmt"
	"testing"
)

// A 1 MB clip as the preview player would request it while scrubbing.
const clipSize = 1 << 20

func TestParseRange(t *testing.T) {
	tests := []struct {
		header string
		size   int64
		want   string // "start-end", "none" for no range, or an error
	}{
		{"", clipSize, "none"},
		{"bytes=0-", clipSize, "0-1048575"},
		{"bytes=0-1", clipSize, "0-1"},
		{"bytes=524288-", clipSize, "524288-1048575"},
		{"bytes=-4096", clipSize, "1044480-1048575"},
		{"bytes=1048575-", clipSize, "1048575-1048575"},
		{"bytes=1000-9999999", clipSize, "1000-1048575"},
		{"bytes=-9999", 100, "0-99"},
		{"bytes=10-19,40-49", 100, "10-19"},
		{"bytes=10-19, 40-49", 100, "10-19"},

		{"bytes=100-", 100, ErrUnsatisfiable.Error()},
		{"bytes=50-10", 100, ErrUnsatisfiable.Error()},
		{"bytes=0-0", 0, ErrUnsatisfiable.Error()},
		{"bytes=-0", 100, ErrInvalidRange.Error()},
		{"bytes=--5", 100, ErrInvalidRange.Error()},
		{"bytes=x-5", 100, ErrInvalidRange.Error()},
		{"bytes=5-y", 100, ErrInvalidRange.Error()},
		{"bytes=5", 100, ErrInvalidRange.Error()},
		{"items=0-5", 100, ErrInvalidRange.Error()},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.header, tt.size), func(t *testing.T) {
			r, err := ParseRange(tt.header, tt.size)
			var got string
			switch {
			case err != nil:
				if !errors.Is(err, ErrInvalidRange) && !errors.Is(err, ErrUnsatisfiable) {
					t.Fatalf("unexpected error type: %v", err)
				}
				got = err.Error()
			case r == nil:
				got = "none"
			default:
				got = fmt.Sprintf("%d-%d", r.Start, r.End)
			}
			if got != tt.want {
				t.Errorf("ParseRange(%q, %d) = %s, want %s", tt.header, tt.size, got, tt.want)
			}
		})
	}
}

func TestRange_Headers(t *testing.T) {
	r, err := ParseRange("bytes=-4096", clipSize)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.ContentLength(); got != 4096 {
		t.Errorf("ContentLength() = %d, want 4096", got)
	}
	if got := r.ContentRange(clipSize); got != "bytes 1044480-1048575/1048576" {
		t.Errorf("ContentRange() = %q", got)
	}

	one := Range{Start: 7, End: 7}
	if one.ContentLength() != 1 || one.ContentRange(8) != "bytes 7-7/8" {
		t.Errorf("single byte range = %d %q", one.ContentLength(), one.ContentRange(8))
	}
}
