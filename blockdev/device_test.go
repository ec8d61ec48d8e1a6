package blockdev

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileDeviceReadAt(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}
	dev := NewFileDevice(bytes.NewReader(data), int64(len(data)))

	var got [16]byte
	require.NoError(t, dev.ReadAt(2, 10, got[:]))
	require.Equal(t, data[2*SectorSize+10:2*SectorSize+10+16], got[:])
}

func TestFileDeviceOutOfRange(t *testing.T) {
	dev := NewFileDevice(bytes.NewReader(make([]byte, 512)), 512)
	buf := make([]byte, 16)
	err := dev.ReadAt(1, 0, buf)
	require.Error(t, err)
}

func TestFileDeviceReadHookFiresOnce(t *testing.T) {
	data := make([]byte, 4096)
	dev := NewFileDevice(bytes.NewReader(data), int64(len(data)))

	var calls int
	var lastOff int64
	var lastLen int
	dev.SetReadHook(func(off int64, n int) {
		calls++
		lastOff, lastLen = off, n
	})

	buf := make([]byte, 100)
	require.NoError(t, dev.ReadAt(1, 5, buf))
	require.Equal(t, 1, calls)
	require.EqualValues(t, SectorSize+5, lastOff)
	require.Equal(t, 100, lastLen)

	dev.SetReadHook(nil)
	require.NoError(t, dev.ReadAt(1, 5, buf))
	require.Equal(t, 1, calls, "hook must not fire after being cleared")
}

func TestReadAtOffset(t *testing.T) {
	data := make([]byte, 2048)
	for i := range data {
		data[i] = byte(i)
	}
	dev := NewFileDevice(bytes.NewReader(data), int64(len(data)))

	buf := make([]byte, 8)
	require.NoError(t, ReadAtOffset(dev, 1000, buf))
	require.Equal(t, data[1000:1008], buf)
}

func TestWindow(t *testing.T) {
	data := make([]byte, 8192)
	for i := range data {
		data[i] = byte(i)
	}
	base := NewFileDevice(bytes.NewReader(data), int64(len(data)))

	w, err := NewWindow(base, 4*SectorSize, 4*SectorSize)
	require.NoError(t, err)
	require.Equal(t, int64(4*SectorSize), w.Size())

	buf := make([]byte, 16)
	require.NoError(t, w.ReadAt(0, 0, buf))
	require.Equal(t, data[4*SectorSize:4*SectorSize+16], buf)

	// Reading past the window's size fails even though the base device
	// has more data beyond it.
	require.Error(t, w.ReadAt(3, SectorSize-8, make([]byte, 16)))
}

func TestWindowRejectsUnalignedStart(t *testing.T) {
	base := NewFileDevice(bytes.NewReader(make([]byte, 4096)), 4096)
	_, err := NewWindow(base, 100, 512)
	require.Error(t, err)
}
