package blockdev

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildGPTImage(t *testing.T) []byte {
	t.Helper()
	img := make([]byte, 64*SectorSize)

	header := make([]byte, SectorSize)
	copy(header[0:8], gptSignature)
	binary.LittleEndian.PutUint64(header[72:80], 2)  // partition entry LBA
	binary.LittleEndian.PutUint32(header[80:84], 4)  // num entries
	binary.LittleEndian.PutUint32(header[84:88], 128) // entry size
	copy(img[SectorSize:2*SectorSize], header)

	entry := make([]byte, 128)
	typeGUID := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	copy(entry[0:16], typeGUID[:])
	binary.LittleEndian.PutUint64(entry[32:40], 34) // startLBA
	binary.LittleEndian.PutUint64(entry[40:48], 41) // endLBA (8 sectors)
	name := "ESFS ROOT"
	for i, r := range name {
		binary.LittleEndian.PutUint16(entry[56+i*2:58+i*2], uint16(r))
	}
	copy(img[2*SectorSize:2*SectorSize+128], entry)

	return img
}

func TestListGPTPartitions(t *testing.T) {
	img := buildGPTImage(t)
	dev := NewFileDevice(bytes.NewReader(img), int64(len(img)))

	parts, err := ListGPTPartitions(dev)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	require.Equal(t, "ESFS ROOT", parts[0].Name)
	require.EqualValues(t, 34, parts[0].StartLBA)
	require.EqualValues(t, 8, parts[0].SizeLBA)

	w, err := parts[0].Window(dev)
	require.NoError(t, err)
	require.Equal(t, int64(8*SectorSize), w.Size())
}

func TestListGPTPartitionsRejectsBadSignature(t *testing.T) {
	img := make([]byte, 64*SectorSize)
	dev := NewFileDevice(bytes.NewReader(img), int64(len(img)))
	_, err := ListGPTPartitions(dev)
	require.Error(t, err)
}
