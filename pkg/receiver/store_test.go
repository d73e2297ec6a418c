package receiver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rescp17/bdx/pkg/fileInfo"
	"github.com/rescp17/bdx/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_OpenSinkWritesToInbox(t *testing.T) {
	inbox := t.TempDir()
	store := &Store{InboxDir: inbox}

	meta, err := fileInfo.Metadata{Name: "a.txt", Size: 3, Checksum: sha256Hex([]byte("abc"))}.Encode()
	require.NoError(t, err)

	sink, err := store.OpenSink(context.Background(), &transfer.IncomingTransfer{
		ID:             "t1",
		FileDesignator: "docs/a.txt",
		Metadata:       meta,
	})
	require.NoError(t, err)
	require.NoError(t, sink.WriteBlock(0, []byte("abc")))
	require.NoError(t, sink.Commit(context.Background()))

	data, err := os.ReadFile(filepath.Join(inbox, "docs", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestStore_OpenSinkVerifiesChecksum(t *testing.T) {
	store := &Store{InboxDir: t.TempDir()}
	meta, err := fileInfo.Metadata{Checksum: sha256Hex([]byte("abc"))}.Encode()
	require.NoError(t, err)

	sink, err := store.OpenSink(context.Background(), &transfer.IncomingTransfer{FileDesignator: "a.txt", Metadata: meta})
	require.NoError(t, err)
	require.NoError(t, sink.WriteBlock(0, []byte("xyz")))
	assert.ErrorIs(t, sink.Commit(context.Background()), fileInfo.ErrChecksumMismatch)
}

func TestStore_OpenSinkIgnoresBadMetadata(t *testing.T) {
	store := &Store{InboxDir: t.TempDir()}
	sink, err := store.OpenSink(context.Background(), &transfer.IncomingTransfer{
		FileDesignator: "a.txt",
		Metadata:       []byte("{not json"),
	})
	require.NoError(t, err)
	require.NoError(t, sink.Abort(nil))
}

func TestStore_OpenSinkResumes(t *testing.T) {
	inbox := t.TempDir()
	store := &Store{InboxDir: inbox}
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "a.txt"+PartSuffix), []byte("hello"), 0o644))

	sink, err := store.OpenSink(context.Background(), &transfer.IncomingTransfer{FileDesignator: "a.txt", StartOffset: 5})
	require.NoError(t, err)
	require.NoError(t, sink.WriteBlock(5, []byte("!")))
	require.NoError(t, sink.Commit(context.Background()))

	data, err := os.ReadFile(filepath.Join(inbox, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello!", string(data))
}

func TestStore_OpenSinkToBucket(t *testing.T) {
	putter := &fakePutter{}
	store := &Store{Objects: putter, Bucket: "inbox", Prefix: "bdx/"}

	sink, err := store.OpenSink(context.Background(), &transfer.IncomingTransfer{FileDesignator: "a.txt"})
	require.NoError(t, err)
	require.IsType(t, &S3Sink{}, sink)
	require.NoError(t, sink.WriteBlock(0, []byte("abc")))
	require.NoError(t, sink.Commit(context.Background()))

	require.Len(t, putter.calls, 1)
	assert.Equal(t, "bdx/a.txt", *putter.calls[0].input.Key)

	_, err = store.OpenSink(context.Background(), &transfer.IncomingTransfer{FileDesignator: "a.txt", StartOffset: 10})
	assert.ErrorIs(t, err, transfer.ErrStartOffsetUnsupported)
}

func TestStore_Disabled(t *testing.T) {
	store := &Store{}
	in := &transfer.IncomingTransfer{FileDesignator: "a.txt"}

	_, err := store.OpenSink(context.Background(), in)
	assert.ErrorIs(t, err, transfer.ErrDesignatorUnknown)
	_, err = store.OpenSource(context.Background(), in)
	assert.ErrorIs(t, err, transfer.ErrDesignatorUnknown)
}

func TestStore_OpenSource(t *testing.T) {
	serve := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(serve, "fw.bin"), []byte("image"), 0o644))
	store := &Store{ServeDir: serve}

	src, err := store.OpenSource(context.Background(), &transfer.IncomingTransfer{FileDesignator: "fw.bin"})
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, uint64(5), src.Size())

	confined, err := store.OpenSource(context.Background(), &transfer.IncomingTransfer{FileDesignator: "../fw.bin"})
	require.NoError(t, err, "the designator is confined to the serve directory")
	confined.Close()

	_, err = store.OpenSource(context.Background(), &transfer.IncomingTransfer{FileDesignator: "nope.bin"})
	assert.ErrorIs(t, err, transfer.ErrDesignatorUnknown)
}
