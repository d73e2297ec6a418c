package receiver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rescp17/bdx/pkg/fileInfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestFileSink_WriteAndCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.bin")
	sink, err := NewFileSink(path, FileSinkOptions{ExpectedSHA256: sha256Hex([]byte("hello world"))})
	require.NoError(t, err)

	require.NoError(t, sink.WriteBlock(0, []byte("hello")))
	require.NoError(t, sink.WriteBlock(5, []byte(" world")))
	require.NoError(t, sink.WriteBlock(11, nil))
	assert.Equal(t, uint64(11), sink.Written())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "the file appears only on commit")

	require.NoError(t, sink.Commit(context.Background()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	_, err = os.Stat(path + PartSuffix)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, path, sink.Path())
}

func TestFileSink_OffsetsLeaveHoles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sparse.bin")
	sink, err := NewFileSink(path, FileSinkOptions{})
	require.NoError(t, err)

	require.NoError(t, sink.WriteBlock(4, []byte("data")))
	require.NoError(t, sink.Commit(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 'd', 'a', 't', 'a'}, data)
}

func TestFileSink_ChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	sink, err := NewFileSink(path, FileSinkOptions{ExpectedSHA256: sha256Hex([]byte("expected"))})
	require.NoError(t, err)

	require.NoError(t, sink.WriteBlock(0, []byte("something else")))
	err = sink.Commit(context.Background())
	assert.ErrorIs(t, err, fileInfo.ErrChecksumMismatch)

	for _, p := range []string{path, path + PartSuffix} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), p)
	}
}

func TestFileSink_Resume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.bin")
	require.NoError(t, os.WriteFile(path+PartSuffix, []byte("hello"), 0o644))

	sink, err := NewFileSink(path, FileSinkOptions{Resume: true})
	require.NoError(t, err)
	require.NoError(t, sink.WriteBlock(5, []byte(" world")))
	require.NoError(t, sink.Commit(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, uint64(6), sink.Written())
}

func TestFileSink_ResumeDropsStaleTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.bin")
	require.NoError(t, os.WriteFile(path+PartSuffix, []byte("hello, stale tail"), 0o644))

	sink, err := NewFileSink(path, FileSinkOptions{Resume: true})
	require.NoError(t, err)
	require.NoError(t, sink.WriteBlock(5, []byte(" world")))
	require.NoError(t, sink.Commit(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestFileSink_ResumeWithoutBlocksKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "done.bin")
	require.NoError(t, os.WriteFile(path+PartSuffix, []byte("complete"), 0o644))

	sink, err := NewFileSink(path, FileSinkOptions{Resume: true})
	require.NoError(t, err)
	require.NoError(t, sink.Commit(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "complete", string(data))
}

func TestFileSink_NoResumeTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.bin")
	require.NoError(t, os.WriteFile(path+PartSuffix, []byte("old contents"), 0o644))

	sink, err := NewFileSink(path, FileSinkOptions{})
	require.NoError(t, err)
	require.NoError(t, sink.WriteBlock(0, []byte("new")))
	require.NoError(t, sink.Commit(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestFileSink_Abort(t *testing.T) {
	testCases := []struct {
		name        string
		keepPartial bool
	}{
		{name: "removes partial file", keepPartial: false},
		{name: "keeps partial file", keepPartial: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.bin")
			sink, err := NewFileSink(path, FileSinkOptions{KeepPartial: tc.keepPartial})
			require.NoError(t, err)
			require.NoError(t, sink.WriteBlock(0, []byte("partial")))

			require.NoError(t, sink.Abort(errors.New("peer went away")))
			require.NoError(t, sink.Abort(nil), "abort is idempotent")

			_, err = os.Stat(path + PartSuffix)
			assert.Equal(t, tc.keepPartial, err == nil)
			_, err = os.Stat(path)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestFileSink_ClosedRejectsWrites(t *testing.T) {
	sink, err := NewFileSink(filepath.Join(t.TempDir(), "out.bin"), FileSinkOptions{})
	require.NoError(t, err)
	require.NoError(t, sink.Commit(context.Background()))

	assert.ErrorIs(t, sink.WriteBlock(0, []byte("late")), ErrSinkClosed)
	assert.ErrorIs(t, sink.Commit(context.Background()), ErrSinkClosed)
}
