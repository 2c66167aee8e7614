package migrate

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// InputKind identifies how a dump is supplied.
type InputKind int

const (
	InputUnknown InputKind = iota
	InputFile              // plain-text dump file
	InputGzip              // gzip-compressed dump file
	InputStdin             // "-"
	InputS3                // s3://bucket/key
)

func (k InputKind) String() string {
	switch k {
	case InputFile:
		return "SQL file"
	case InputGzip:
		return "gzip SQL file"
	case InputStdin:
		return "stdin"
	case InputS3:
		return "S3 object"
	default:
		return "unknown"
	}
}

// DetectInput determines the input kind from a dump argument.
//
// Detection rules:
//   - "-" → stdin
//   - s3://bucket/key → object storage
//   - *.gz or *.gzip → gzip file
//   - any other non-empty path → plain file
func DetectInput(arg string) InputKind {
	switch {
	case arg == "":
		return InputUnknown
	case arg == "-":
		return InputStdin
	case strings.HasPrefix(arg, s3Scheme):
		return InputS3
	}
	switch strings.ToLower(filepath.Ext(arg)) {
	case ".gz", ".gzip":
		return InputGzip
	}
	return InputFile
}

// Dump is a fully read logical dump.
type Dump struct {
	Text       string
	Name       string
	SizeBytes  int64 // bytes read from the source, before decompression
	Compressed bool
}

// Info describes the dump for reports, e.g. "backup.sql.gz, 7.2 MB (gzip)".
func (d Dump) Info() string {
	info := fmt.Sprintf("%s, %s", d.Name, FormatBytes(d.SizeBytes))
	if d.Compressed {
		info += " (gzip)"
	}
	return info
}

var gzipMagic = []byte{0x1f, 0x8b}

// ReadDump reads a dump from r, transparently decompressing gzip input.
// Compression is detected from the stream itself, not the file name.
func ReadDump(r io.Reader, name string) (Dump, error) {
	counter := &countingReader{r: r}
	br := bufio.NewReader(counter)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return Dump{}, fmt.Errorf("reading %s: %w", name, err)
	}

	var src io.Reader = br
	compressed := bytes.Equal(head, gzipMagic)
	if compressed {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return Dump{}, fmt.Errorf("opening gzip stream %s: %w", name, err)
		}
		defer zr.Close()
		src = zr
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, src); err != nil {
		return Dump{}, fmt.Errorf("reading %s: %w", name, err)
	}
	return Dump{Text: sb.String(), Name: name, SizeBytes: counter.n, Compressed: compressed}, nil
}

// OpenDump reads the dump named by arg: a file path, "-" for stdin, or an
// s3:// URI read through objects.
func OpenDump(ctx context.Context, arg string, stdin io.Reader, objects ObjectOpener) (Dump, error) {
	switch DetectInput(arg) {
	case InputUnknown:
		return Dump{}, fmt.Errorf("dump path is required")
	case InputStdin:
		return ReadDump(stdin, "stdin")
	case InputS3:
		return openS3Dump(ctx, arg, objects)
	}
	f, err := os.Open(arg)
	if err != nil {
		return Dump{}, fmt.Errorf("opening dump: %w", err)
	}
	defer f.Close()
	return ReadDump(f, filepath.Base(arg))
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
