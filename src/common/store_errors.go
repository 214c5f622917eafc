package common

import "fmt"

// StoreErrType classifies store errors.
type StoreErrType uint32

const (
	// KeyNotFound is returned when the requested record does not exist.
	KeyNotFound StoreErrType = iota
	// KeyAlreadyExists is returned when inserting over an existing record.
	KeyAlreadyExists
	// Empty is returned when a query yields no records.
	Empty
)

// StoreErr is the error type returned by all store implementations. The
// dataType field identifies the record family (Event, Identity, etc.).
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr creates a StoreErr.
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error implements the error interface.
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case KeyAlreadyExists:
		m = "Key Already Exists"
	case Empty:
		m = "Empty"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that an error is of type StoreErr and that its code matches
// the provided StoreErrType.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := err.(StoreErr)
	return ok && storeErr.errType == t
}
