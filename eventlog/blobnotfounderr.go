package eventlog

import (
	"errors"
	"fmt"

	azStorageBlob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// Adapted from forestrie-go-merklelog/massifs/blobnotfounderr.go: the
// teacher translates Azure's internal not-found error into a sentinel; we
// do the same here for BlobStore, plus a sibling for the etag-none-match
// conflict AppendEvent relies on for idempotent re-append.
const (
	azblobBlobNotFound      = "BlobNotFound"
	azblobBlobAlreadyExists = "BlobAlreadyExists"
)

var (
	ErrBlobNotFound      = errors.New("eventlog: blob not found")
	ErrBlobAlreadyExists = errors.New("eventlog: blob already exists")
)

func asStorageError(err error) (azStorageBlob.StorageError, bool) {
	serr := &azStorageBlob.StorageError{}
	ierr, ok := err.(*azStorageBlob.InternalError)
	if ierr == nil || !ok {
		return azStorageBlob.StorageError{}, false
	}
	if !ierr.As(&serr) {
		return azStorageBlob.StorageError{}, false
	}
	return *serr, true
}

func wrapAzureCode(err error, code string, sentinel error) error {
	if err == nil {
		return nil
	}
	serr, ok := asStorageError(err)
	if !ok || serr.ErrorCode != code {
		return err
	}
	return fmt.Errorf("%s: %w", err.Error(), sentinel)
}

// WrapBlobNotFound translates err to ErrBlobNotFound if the underlying
// error is Azure's blob-not-found; otherwise err is returned unchanged.
func WrapBlobNotFound(err error) error {
	return wrapAzureCode(err, azblobBlobNotFound, ErrBlobNotFound)
}

func IsBlobNotFoundErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBlobNotFound) {
		return true
	}
	serr, ok := asStorageError(err)
	return ok && serr.ErrorCode == azblobBlobNotFound
}

func IsBlobAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBlobAlreadyExists) {
		return true
	}
	serr, ok := asStorageError(err)
	return ok && serr.ErrorCode == azblobBlobAlreadyExists
}
