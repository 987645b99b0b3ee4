package parity

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildFileDescPacket(filename string, hash16k [16]byte) []byte {
	nameBytes := []byte(filename)
	padded := (len(nameBytes) + 3) &^ 3
	paddedName := make([]byte, padded)
	copy(paddedName, nameBytes)

	bodyLen := fileDescFixed + padded
	packetLen := uint64(par2HeaderSize + bodyLen)

	packet := make([]byte, 0, packetLen)
	packet = append(packet, par2Magic...)

	lenBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(lenBuf, packetLen)
	packet = append(packet, lenBuf...)

	packet = append(packet, make([]byte, 16)...) // packet hash
	packet = append(packet, make([]byte, 16)...) // recovery set id
	packet = append(packet, fileDescType...)

	packet = append(packet, make([]byte, 16)...) // file id
	packet = append(packet, make([]byte, 16)...) // md5 full
	packet = append(packet, hash16k[:]...)

	lengthBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(lengthBuf, 1024)
	packet = append(packet, lengthBuf...)

	packet = append(packet, paddedName...)
	return packet
}

func TestParseSingleFileDescPacket(t *testing.T) {
	hash := [16]byte{}
	for i := range hash {
		hash[i] = 1
	}

	data := buildFileDescPacket("movie.mkv", hash)
	entries := parseFileEntriesFromBytes(data)

	assert.Len(t, entries, 1)
	assert.Equal(t, "movie.mkv", entries[0].Filename)
	assert.Equal(t, hash, entries[0].Hash16K)
}

func TestParseMultipleFileDescPackets(t *testing.T) {
	hash1, hash2 := [16]byte{1}, [16]byte{2}

	data := buildFileDescPacket("file1.rar", hash1)
	data = append(data, buildFileDescPacket("file2.rar", hash2)...)

	entries := parseFileEntriesFromBytes(data)

	assert.Len(t, entries, 2)
	assert.Equal(t, "file1.rar", entries[0].Filename)
	assert.Equal(t, "file2.rar", entries[1].Filename)
}

func TestParseEmptyDataReturnsNoEntries(t *testing.T) {
	assert.Empty(t, parseFileEntriesFromBytes(nil))
}

func TestParseGarbageDataReturnsNoEntries(t *testing.T) {
	garbage := make([]byte, 1024)
	for i := range garbage {
		garbage[i] = 0xFF
	}
	assert.Empty(t, parseFileEntriesFromBytes(garbage))
}

func TestParseTruncatedPacketReturnsNoEntries(t *testing.T) {
	full := buildFileDescPacket("test.bin", [16]byte{3})
	truncated := full[:par2HeaderSize]
	assert.Empty(t, parseFileEntriesFromBytes(truncated))
}

func TestExtractFilenameHandlesNullPadding(t *testing.T) {
	assert.Equal(t, "hello.txt", extractFilename([]byte("hello.txt\x00\x00\x00")))
}

func TestExtractFilenameHandlesNoNull(t *testing.T) {
	assert.Equal(t, "hello.txt", extractFilename([]byte("hello.txt")))
}

func TestNonFileDescPacketsAreSkipped(t *testing.T) {
	const bodyLen = 16
	packetLen := uint64(par2HeaderSize + bodyLen)

	var data []byte
	data = append(data, par2Magic...)
	lenBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(lenBuf, packetLen)
	data = append(data, lenBuf...)
	data = append(data, make([]byte, 16)...)
	data = append(data, make([]byte, 16)...)
	data = append(data, []byte("PAR 2.0\x00Main\x00\x00\x00\x00")...)
	data = append(data, make([]byte, bodyLen)...)

	data = append(data, buildFileDescPacket("real.rar", [16]byte{5})...)

	entries := parseFileEntriesFromBytes(data)
	assert.Len(t, entries, 1)
	assert.Equal(t, "real.rar", entries[0].Filename)
}
