package mocks

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/dapperlabs/merklix/fs"
)

// TestMockFileSystemReaddirFailurePropagates exercises the mock the way
// engine/execution/state/state_test.go exercises its own mocks: set an
// expectation, inject a failure, assert the caller sees it.
func TestMockFileSystemReaddirFailurePropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := NewMockFileSystem(ctrl)
	boom := errors.New("boom")
	m.EXPECT().Readdir("/store").Return(nil, boom)

	entries, err := m.Readdir("/store")
	require.Nil(t, entries)
	require.Equal(t, boom, err)
}

func TestMockFileRoundTrip(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := NewMockFile(ctrl)
	f.EXPECT().Append([]byte("hi")).Return(int64(0), nil)
	f.EXPECT().Size().Return(int64(2), nil)
	f.EXPECT().Sync().Return(nil)
	f.EXPECT().Close().Return(nil)

	off, err := f.Append([]byte("hi"))
	require.NoError(t, err)
	require.Equal(t, int64(0), off)

	size, err := f.Size()
	require.NoError(t, err)
	require.Equal(t, int64(2), size)

	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())
}

var _ fs.FileSystem = (*MockFileSystem)(nil)
