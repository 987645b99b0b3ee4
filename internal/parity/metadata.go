package parity

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// FileEntry is a file description parsed out of a PAR2 recovery set,
// giving DirectRename enough to match an obfuscated downloaded file back
// to its real name by comparing 16KB MD5 hashes.
type FileEntry struct {
	Filename string
	Hash16K  [16]byte
}

var (
	par2Magic    = []byte("PAR2\x00PKT")
	fileDescType = []byte("PAR 2.0\x00FileDesc")
)

// Packet header layout: magic(8) + length(8) + packetHash(16) + setID(16) + type(16) = 64
const (
	par2HeaderSize  = 8 + 8 + 16 + 16 + 16
	par2TypeOffset  = 8 + 8 + 16 + 16
	fileDescFixed   = 16 + 16 + 16 + 8 // fileID + md5Full + md5_16k + fileLength
	fileDescMD5Off  = 16 + 16          // after fileID + md5Full
)

// ParseFileEntries scans every .par2 file in dir and returns the File
// Description entries found across all of them, deduplicated by filename.
func ParseFileEntries(dir string) ([]FileEntry, error) {
	files, err := findAllPar2Files(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []FileEntry
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		for _, e := range parseFileEntriesFromBytes(data) {
			if seen[e.Filename] {
				continue
			}
			seen[e.Filename] = true
			out = append(out, e)
		}
	}
	return out, nil
}

// parseFileEntriesFromBytes is the core parser, kept free of any
// filesystem dependency so it can be exercised directly in tests.
func parseFileEntriesFromBytes(data []byte) []FileEntry {
	var entries []FileEntry
	pos := 0

	for pos+par2HeaderSize <= len(data) {
		idx := bytes.Index(data[pos:], par2Magic)
		if idx < 0 {
			break
		}
		pos += idx

		if pos+par2HeaderSize > len(data) {
			break
		}

		packetLen := int(binary.LittleEndian.Uint64(data[pos+8 : pos+16]))
		if packetLen < par2HeaderSize || pos+packetLen > len(data) {
			pos += 8
			continue
		}

		typeSig := data[pos+par2TypeOffset : pos+par2TypeOffset+16]
		if bytes.Equal(typeSig, fileDescType) {
			bodyStart := pos + par2HeaderSize
			bodyLen := packetLen - par2HeaderSize

			if bodyLen >= fileDescFixed {
				md5Start := bodyStart + fileDescMD5Off
				var hash16k [16]byte
				copy(hash16k[:], data[md5Start:md5Start+16])

				nameStart := bodyStart + fileDescFixed
				nameEnd := pos + packetLen
				if nameStart < nameEnd {
					filename := extractFilename(data[nameStart:nameEnd])
					if filename != "" {
						entries = append(entries, FileEntry{Filename: filename, Hash16K: hash16k})
					}
				}
			}
		}

		pos += packetLen
	}

	return entries
}

// extractFilename trims a null-terminated, null-padded filename field.
func extractFilename(b []byte) string {
	if end := bytes.IndexByte(b, 0); end >= 0 {
		b = b[:end]
	}
	return string(b)
}

// Compute16KMD5 hashes the first 16KB of path, the same fingerprint PAR2
// File Description packets carry, so a downloaded file can be matched
// against ParseFileEntries output regardless of its on-disk name.
func Compute16KMD5(path string) ([16]byte, error) {
	var out [16]byte

	f, err := os.Open(path)
	if err != nil {
		return out, err
	}
	defer f.Close()

	buf := make([]byte, 16384)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return out, fmt.Errorf("reading %s: %w", path, err)
	}

	sum := md5.Sum(buf[:n])
	return sum, nil
}
