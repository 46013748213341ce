package validation

import "errors"

var (
	ErrInvalidFileType   = errors.New("invalid file type")
	ErrFileTooLarge      = errors.New("file exceeds upload size limit")
	ErrExtensionMismatch = errors.New("file extension does not match content")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)
