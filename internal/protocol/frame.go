package protocol

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	poserrors "github.com/issac1998/pos-relay/internal/errors"
)

var headerPattern = regexp.MustCompile(`^mlen=(\d+)$`)

// FrameTooLargeError reports a header announcing more than the allowed size.
// The announced bytes have been skipped; the reader can continue.
type FrameTooLargeError struct {
	Size int
	Max  int
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("frame of %d bytes exceeds limit %d", e.Size, e.Max)
}

// FrameReader splits an upstream byte stream into message bodies
type FrameReader struct {
	r       *bufio.Reader
	maxSize int
}

// NewFrameReader wraps r. maxSize <= 0 disables the size guard.
func NewFrameReader(r io.Reader, maxSize int) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r), maxSize: maxSize}
}

// Next returns the next body decoded to text. Lines that are not an
// mlen header are skipped. Errors from the underlying reader, including
// io.EOF, are returned unchanged.
func (f *FrameReader) Next() (string, error) {
	for {
		line, err := f.r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}

		m := headerPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			if err == io.EOF {
				return "", io.EOF
			}
			continue
		}

		size, convErr := strconv.Atoi(m[1])
		if convErr != nil {
			continue
		}

		if f.maxSize > 0 && size > f.maxSize {
			if _, err := io.CopyN(io.Discard, f.r, int64(size)); err != nil {
				return "", err
			}
			return "", poserrors.Parse("oversized frame skipped", &FrameTooLargeError{Size: size, Max: f.maxSize})
		}

		body := make([]byte, size)
		if _, err := io.ReadFull(f.r, body); err != nil {
			return "", err
		}
		return DecodeBody(body), nil
	}
}

// DecodeBody interprets bytes as UTF-8, falling back to ISO-8859-1
func DecodeBody(body []byte) string {
	if utf8.Valid(body) {
		return string(body)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}
