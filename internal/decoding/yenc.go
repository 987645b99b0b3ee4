package decoding

import (
	"bufio"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"strconv"
	"strings"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

var ErrHeaderNotFound = errors.New("yenc header not found")

type YencDecoder struct {
	scanner     *bufio.Reader
	reachedEnd  bool
	escaped     bool // State: was the previous byte '='?
	hash        hash.Hash32
	expectedCRC uint32
}

func NewYencDecoder(r io.Reader) *YencDecoder {
	return &YencDecoder{
		scanner: bufio.NewReader(r),
		hash:    crc32.NewIEEE(), // yEnc uses the standard IEEE polynomial
	}
}

func (d *YencDecoder) DiscardHeader() error {
	for {
		line, err := d.scanner.ReadString('\n')
		if err != nil {
			return fmt.Errorf("searching for yenc header: %w", err)
		}

		if strings.HasPrefix(line, "=ybegin") {
			return d.handlePotentialPartHeader()
		}
	}
}

func (d *YencDecoder) Read(p []byte) (n int, err error) {
	if d.reachedEnd {
		return 0, io.EOF
	}

	for n < len(p) {
		b, err := d.scanner.ReadByte()
		if err != nil {
			return n, err
		}

		// Handle yEnc Escape character
		if b == '=' && !d.escaped {
			// Peek ahead to see if this is actually the end of the file
			peek, _ := d.scanner.Peek(4)
			if len(peek) >= 4 && string(peek) == "yend" {
				d.reachedEnd = true
				d.parseFooter() // Extract CRC from the footer
				return n, io.EOF
			}

			d.escaped = true
			continue
		}

		if b == '\r' || b == '\n' {
			// yEnc ignores critical characters (newlines) unless they are escaped.
			// If escaped is true, it shouldn't be a newline, but we reset anyway.
			d.escaped = false
			continue
		}

		// Decode the byte
		var decoded byte
		if d.escaped {
			decoded = b - 64 - 42
			d.escaped = false
		} else {
			decoded = b - 42
		}

		p[n] = decoded
		d.hash.Write(p[n : n+1])
		n++
	}

	return n, nil
}

// DecodeArticle reads and CRC-verifies the body of a single domain.Article
// off r, returning exactly a.Length decoded bytes. It owns the article's
// expected size so a truncated body (decoder hit EOF before filling the
// buffer) is reported as a protocol error instead of silently handed to
// the Download Engine as a short, wrongly-offset write.
func DecodeArticle(r io.Reader, a *domain.Article) ([]byte, error) {
	d := NewYencDecoder(r)
	if err := d.DiscardHeader(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProtocolError, err)
	}

	buf := make([]byte, a.Length)
	total := 0
	for total < len(buf) {
		n, err := d.Read(buf[total:])
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTransient, err)
		}
	}

	// The buffer can fill before the decoder reaches the =yend footer that
	// carries the expected CRC; read on until it does.
	if total == len(buf) && !d.reachedEnd {
		var extra [1]byte
		n, err := d.Read(extra[:])
		if n > 0 {
			return nil, fmt.Errorf("%w: article %s decoded more than %d bytes", domain.ErrProtocolError, a.MessageID, len(buf))
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("%w: %v", domain.ErrTransient, err)
		}
	}

	if total != len(buf) {
		return nil, fmt.Errorf("%w: article %s decoded %d bytes, expected %d",
			domain.ErrProtocolError, a.MessageID, total, len(buf))
	}

	if err := d.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}

	return buf, nil
}

func (d *YencDecoder) parseFooter() {
	line, _ := d.scanner.ReadString('\n')
	// Typical footer: =yend size=12345 pcrc32=ABC12345
	parts := strings.Fields(line)
	for _, part := range parts {
		if strings.HasPrefix(part, "pcrc32=") {
			val := strings.TrimPrefix(part, "pcrc32=")
			crc, err := strconv.ParseUint(val, 16, 32)
			if err == nil {
				d.expectedCRC = uint32(crc)
				return // Found the part CRC, we can stop
			}
		}
		// Fallback to crc32 if pcrc32 isn't there
		if strings.HasPrefix(part, "crc32=") {
			val := strings.TrimPrefix(part, "crc32=")
			crc, err := strconv.ParseUint(val, 16, 32)
			if err == nil {
				d.expectedCRC = uint32(crc)
			}
		}
	}
}

func (d *YencDecoder) Verify() error {
	actual := d.hash.Sum32()
	if actual != d.expectedCRC {
		return fmt.Errorf("checksum mismatch: expected %08X, got %08X", d.expectedCRC, actual)
	}
	return nil
}

func (d *YencDecoder) handlePotentialPartHeader() error {
	// Peek at the next few bytes to see if =ypart follows
	// We use Peek so we don't consume the data if it's actually binary
	peek, _ := d.scanner.Peek(100)
	peekStr := string(peek)

	if strings.Contains(peekStr, "=ypart") {
		_, err := d.scanner.ReadString('\n')
		return err
	}
	return nil
}
