package session

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// MediaTypePDF is the only document type the backend ingests.
const MediaTypePDF = "application/pdf"

// Document is a file handle offered for upload: a name, the declared media
// type and the binary payload.
type Document struct {
	Name      string
	MediaType string
	Data      []byte
}

// OpenDocument reads a local file and declares its media type from the
// content, since files on disk carry no type of their own.
func OpenDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("session: open document: %w", err)
	}
	return Document{
		Name:      filepath.Base(path),
		MediaType: mimetype.Detect(data).String(),
		Data:      data,
	}, nil
}

// baseMediaType strips parameters such as charset from a media type.
func baseMediaType(mediaType string) string {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return mediaType
	}
	return mt
}
