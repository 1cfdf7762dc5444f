package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/forestrie/go-keri/digest"
	"github.com/forestrie/go-keri/event"
)

// blobWriter is the narrow azblob surface BlobStore needs for writes,
// mirroring the teacher's massifStore/MassifCommitter.Store field
// (forestrie-go-merklelog's massifs/massifcommitter.go): Put takes a path,
// an azblob.ReaderCloser body and azblob.Option(s) for etag/tag control.
type blobWriter interface {
	Put(ctx context.Context, path string, body azblob.ReaderCloser, opts ...azblob.Option) (*azblob.WriteResponse, error)
}

// blobReader is the read-side counterpart: rather than assume the exact
// shape of azblob.ReaderResponse (an SDK-internal detail the corpus doesn't
// fully expose to us), BlobStore depends on the minimal io.ReadCloser
// contract a caller-supplied adapter translates the real SDK response into,
// the same narrowing the teacher applies with its own logBlobReader
// interface in blobreader.go.
type blobReader interface {
	Reader(ctx context.Context, path string, opts ...azblob.Option) (io.ReadCloser, error)
}

type blobStore interface {
	blobWriter
	blobReader
}

// BlobStore is an EventLog backend persisting each event as one blob keyed
// by its digest, plus a per-identifier index blob mapping sn->digest. It
// offers AppendEvent, GetEvent and GetIndex with context arguments and does
// not implement the Store interface.
//
// Grounded on massifcommitter.go's CommitContext: blob paths are stable and
// writes go through the same azblob.Option plumbing (tags, etag-guarded
// create/replace) the teacher uses for massif blobs, just re-keyed by
// (identifier, sn) instead of massif index.
type BlobStore struct {
	store blobStore
	// index mirrors the secondary (identifier,sn)->digest table locally so
	// Range/GetEventAt don't need a remote list call per read; it is
	// populated from the index blob on first touch per identifier and kept
	// current by AppendEvent.
	index map[string]map[uint64]string
}

func NewBlobStore(store blobStore) *BlobStore {
	return &BlobStore{store: store, index: map[string]map[uint64]string{}}
}

func eventBlobPath(d digest.Digest) string {
	return fmt.Sprintf("events/%s", d.Qb64())
}

func indexBlobPath(identifier string) string {
	return fmt.Sprintf("kel/%s/index.json", identifier)
}

type indexRecord struct {
	SN     uint64 `json:"sn"`
	Digest string `json:"digest"`
}

// AppendEvent writes the event blob then the refreshed index blob, loading
// the stored index first when the identifier has not been touched yet.
func (s *BlobStore) AppendEvent(ctx context.Context, se event.SignedEvent) (bool, error) {
	data, err := json.Marshal(se)
	if err != nil {
		return false, &StorageError{Op: "BlobStore.AppendEvent/marshal", Err: err}
	}

	path := eventBlobPath(se.Event.D)
	// CRITICAL (per massifcommitter.go): guard blob creation with
	// etag-none-match so two writers racing to append the same digest don't
	// clobber each other; a conflict here means the content already exists,
	// which is exactly the idempotent no-op spec.md §4.1 requires.
	_, err = s.store.Put(ctx, path, azblob.NewBytesReaderCloser(data), azblob.WithEtagNoneMatch("*"))
	if err != nil {
		if IsBlobAlreadyExists(err) {
			return false, nil
		}
		return false, &StorageError{Op: "BlobStore.AppendEvent/put", Err: err}
	}

	idx, err := s.GetIndex(ctx, se.Event.I)
	if err != nil {
		return false, err
	}
	s.index[se.Event.I] = idx
	idx[se.Event.S] = se.Event.D.Qb64()

	if err := s.flushIndex(ctx, se.Event.I); err != nil {
		return false, err
	}
	return true, nil
}

func (s *BlobStore) flushIndex(ctx context.Context, identifier string) error {
	idx := s.index[identifier]
	records := make([]indexRecord, 0, len(idx))
	for sn, d := range idx {
		records = append(records, indexRecord{SN: sn, Digest: d})
	}
	data, err := json.Marshal(records)
	if err != nil {
		return &StorageError{Op: "BlobStore.flushIndex/marshal", Err: err}
	}
	_, err = s.store.Put(ctx, indexBlobPath(identifier), azblob.NewBytesReaderCloser(data))
	if err != nil {
		return &StorageError{Op: "BlobStore.flushIndex/put", Err: err}
	}
	return nil
}

func (s *BlobStore) GetEvent(ctx context.Context, d digest.Digest) (event.SignedEvent, bool, error) {
	body, err := s.store.Reader(ctx, eventBlobPath(d))
	if err != nil {
		if IsBlobNotFoundErr(err) {
			return event.SignedEvent{}, false, nil
		}
		return event.SignedEvent{}, false, &StorageError{Op: "BlobStore.GetEvent", Err: err}
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return event.SignedEvent{}, false, &StorageError{Op: "BlobStore.GetEvent/read", Err: err}
	}
	var se event.SignedEvent
	if err := json.Unmarshal(data, &se); err != nil {
		return event.SignedEvent{}, false, &StorageError{Op: "BlobStore.GetEvent/unmarshal", Err: err}
	}
	return se, true, nil
}

func (s *BlobStore) GetIndex(ctx context.Context, identifier string) (map[uint64]string, error) {
	if idx, ok := s.index[identifier]; ok {
		return idx, nil
	}
	body, err := s.store.Reader(ctx, indexBlobPath(identifier))
	if err != nil {
		if IsBlobNotFoundErr(err) {
			return map[uint64]string{}, nil
		}
		return nil, &StorageError{Op: "BlobStore.GetIndex", Err: err}
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &StorageError{Op: "BlobStore.GetIndex/read", Err: err}
	}
	var records []indexRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &StorageError{Op: "BlobStore.GetIndex/unmarshal", Err: err}
	}
	idx := make(map[uint64]string, len(records))
	for _, r := range records {
		idx[r.SN] = r.Digest
	}
	s.index[identifier] = idx
	return idx, nil
}
