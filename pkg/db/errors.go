package db

import (
	"errors"

	"gorm.io/gorm"
)

// IsNotFound reports whether the error is GORM's record-not-found.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicate reports whether the error is GORM's duplicated-key error.
func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
