package validation

import (
	"bytes"
	"fmt"
)

type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypePNG  FileType = "png"
	FileTypeJPEG FileType = "jpeg"
	FileTypeGIF  FileType = "gif"
)

var magicBytes = map[FileType][]byte{
	FileTypePDF:  {0x25, 0x50, 0x44, 0x46},
	FileTypePNG:  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	FileTypeJPEG: {0xFF, 0xD8, 0xFF},
	FileTypeGIF:  {0x47, 0x49, 0x46, 0x38},
}

// DetectFileType sniffs the content type from the leading bytes.
// Extension is ignored on purpose: clients lie about it.
func DetectFileType(data []byte) (FileType, error) {
	if len(data) == 0 {
		return "", ErrEmptyFile
	}
	for fileType, signature := range magicBytes {
		if bytes.HasPrefix(data, signature) {
			return fileType, nil
		}
	}
	return "", ErrInvalidFileType
}

// CheckDocument validates size and content type for parse input.
func CheckDocument(data []byte, maxSize int64) (FileType, error) {
	if int64(len(data)) > maxSize {
		return "", fmt.Errorf("%w: %.1fMB", ErrFileTooLarge, float64(len(data))/1024/1024)
	}
	return DetectFileType(data)
}
