package validation

import (
	"bytes"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
)

type FileType string

const (
	FileTypePNG     FileType = "png"
	FileTypeJPEG    FileType = "jpeg"
	FileTypeWebP    FileType = "webp"
	FileTypeBMP     FileType = "bmp"
	FileTypeArchive FileType = "zip"
)

var magicBytes = map[FileType][]byte{
	FileTypePNG:     {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	FileTypeJPEG:    {0xFF, 0xD8, 0xFF},
	FileTypeBMP:     {0x42, 0x4D},
	FileTypeArchive: {0x50, 0x4B, 0x03, 0x04},
}

// DetectFileType sniffs the upload's leading bytes, then rewinds the
// reader so the caller can still save the full file.
func DetectFileType(file multipart.File) (FileType, error) {
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	if _, err := file.Seek(0, 0); err != nil {
		return "", err
	}

	return detect(buffer[:n])
}

func detect(head []byte) (FileType, error) {
	// webp is a RIFF container, so its tag sits past the chunk length.
	if len(head) >= 12 && bytes.HasPrefix(head, []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")) {
		return FileTypeWebP, nil
	}

	for fileType, signature := range magicBytes {
		if bytes.HasPrefix(head, signature) {
			return fileType, nil
		}
	}

	return "", ErrInvalidFileType
}

func IsPageType(t FileType) bool {
	switch t {
	case FileTypePNG, FileTypeJPEG, FileTypeWebP, FileTypeBMP:
		return true
	default:
		return false
	}
}

func IsArchiveType(t FileType) bool {
	return t == FileTypeArchive
}

var extensionTypes = map[string]FileType{
	".png":  FileTypePNG,
	".jpg":  FileTypeJPEG,
	".jpeg": FileTypeJPEG,
	".webp": FileTypeWebP,
	".bmp":  FileTypeBMP,
	".zip":  FileTypeArchive,
	".cbz":  FileTypeArchive,
}

// CheckExtension verifies that the filename's extension agrees with the
// sniffed content type.
func CheckExtension(filename string, t FileType) error {
	want, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return ErrUnsupportedFormat
	}
	if want != t {
		return ErrExtensionMismatch
	}
	return nil
}
