// Package services provides repository interfaces and SQLite implementations
// for the last scan snapshot, manual device names and settings.
package services

import "errors"

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = errors.New("not found")
