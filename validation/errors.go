package validation

import "errors"

var (
	ErrInvalidFileType = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file size exceeds limit")
	ErrEmptyFile       = errors.New("file is empty")
)
