package errors

// Package errors provides sentinel errors for chapter discovery.

import "errors"

var (
	// ErrDocsPathNotFound indicates the directory to scan does not exist.
	ErrDocsPathNotFound = errors.New("documentation path not found")

	// ErrDocsDirWalkFailed indicates filesystem traversal of the directory failed.
	ErrDocsDirWalkFailed = errors.New("documentation directory walk failed")

	// ErrFileReadFailed indicates reading a discovered chapter failed.
	ErrFileReadFailed = errors.New("documentation file read failed")

	// ErrNoDocsFound indicates no Markdown files were discovered.
	ErrNoDocsFound = errors.New("no documentation files found")
)
