package storage

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// 存储层错误定义
var (
	ErrConnectionClosed  = errors.New("storage connection is closed")
	ErrStorageNotHealthy = errors.New("storage is not healthy")
	ErrDataNotFound      = errors.New("data not found")
	ErrUnsupportedType   = errors.New("unsupported storage type")
)

const (
	errTypeInvalidData = "INVALID_DATA"
	errTypeConnection  = "CONNECTION_ERROR"
	errTypeQuery       = "QUERY_ERROR"
	errTypeNotFound    = "NOT_FOUND_ERROR"
)

// StorageError 存储错误类型
type StorageError struct {
	Type    string
	Message string
	Cause   error
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

func ErrInvalidData(message string) error {
	return &StorageError{Type: errTypeInvalidData, Message: message}
}

func ErrConnectionError(message string, cause error) error {
	return &StorageError{Type: errTypeConnection, Message: message, Cause: cause}
}

func ErrQueryError(message string, cause error) error {
	return &StorageError{Type: errTypeQuery, Message: message, Cause: cause}
}

// ErrNotFoundError 带key信息的未找到错误, errors.Is(err, ErrDataNotFound) 成立
func ErrNotFoundError(message string) error {
	return &StorageError{Type: errTypeNotFound, Message: message, Cause: ErrDataNotFound}
}

// IsNotFound 判断是否为数据不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDataNotFound)
}

// IsRetryableError 判断错误是否可重试
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		switch storageErr.Type {
		case errTypeConnection, errTypeQuery:
			return true
		default:
			return false
		}
	}

	return errors.Is(err, ErrConnectionClosed) ||
		errors.Is(err, ErrStorageNotHealthy)
}

// IsValidationError 判断是否为参数错误
func IsValidationError(err error) bool {
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr.Type == errTypeInvalidData
	}
	return false
}
