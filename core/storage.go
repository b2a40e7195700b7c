package core

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type (
	// Attachment is a raw file selected by the user and not yet uploaded.
	Attachment struct {
		Filename    string
		ContentType string
		Content     []byte
	}

	// FileUploaded is the result of a completed upload.
	FileUploaded struct {
		FileName string `json:"fileName"`
		URL      string `json:"url"`
		Path     string `json:"path,omitempty"`
	}

	// FileStorage is any service that can store binary files and return stable URLs.
	FileStorage interface {
		Upload(ctx context.Context, att *Attachment, name, path string) (FileUploaded, error)
	}
)

func NewAttachment(filename string, content []byte, contentType ...string) *Attachment {
	at := &Attachment{Filename: filename, Content: content}
	if len(contentType) > 0 && contentType[0] != "" {
		at.ContentType = contentType[0]
	} else {
		at.ContentType = http.DetectContentType(content)
	}
	return at
}

func (at *Attachment) Size() int64 { return int64(len(at.Content)) }

// Ext returns the file extension including the dot, or "".
func (at *Attachment) Ext() string {
	if i := strings.LastIndex(at.Filename, "."); i > 0 {
		return at.Filename[i:]
	}
	return ""
}

// MarshalJSON never exposes the file content.
func (at *Attachment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Filename    string `json:"fileName"`
		ContentType string `json:"contentType"`
		Size        int64  `json:"size"`
	}{at.Filename, at.ContentType, at.Size()})
}

// EventPublisher publishes domain events to interested parties.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload interface{}) error
}

const SubjectChildCommitted = "reports.child.committed"
