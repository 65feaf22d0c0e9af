// Package ingest implements the admin form that sends raw text to the
// backend tagging pipeline.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jinzhu/inflection"

	"github.com/kgcorpus/tagging-console/pkg/models"
)

// DefaultMaxBytes bounds an uploaded file when no limit is configured.
const DefaultMaxBytes int64 = 10 << 20

var (
	ErrEmptySubmission = errors.New("enter text or attach a .txt file")
	ErrNotPlainText    = errors.New("only plain-text .txt files are accepted")
	ErrTooLarge        = errors.New("file is too large")
	ErrSubmitInFlight  = errors.New("submission already in progress")
)

// Source is where an attached file came from.
type Source int

const (
	SourcePicker Source = iota
	SourceDrop
)

func (s Source) String() string {
	if s == SourceDrop {
		return "drop"
	}
	return "picker"
}

// File is an attached plain-text file.
type File struct {
	Name   string
	Data   []byte
	Source Source
}

// Runner sends a prepared multipart body to POST /tagging/run.
type Runner interface {
	RunTagging(ctx context.Context, body io.Reader, contentType string) (*models.TaggingResult, error)
}

// Form holds the pasted text and the attached file until submission.
type Form struct {
	mu         sync.Mutex
	text       string
	file       *File
	maxBytes   int64
	submitting bool
}

// NewForm returns an empty form. maxBytes <= 0 uses DefaultMaxBytes.
func NewForm(maxBytes int64) *Form {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Form{maxBytes: maxBytes}
}

// SetText replaces the pasted text. It fails with ErrSubmitInFlight while a
// submission is running, since that submission clears the form when it
// succeeds.
func (f *Form) SetText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting {
		return ErrSubmitInFlight
	}
	f.text = text
	return nil
}

// Text returns the pasted text.
func (f *Form) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

// File returns the attached file, or nil.
func (f *Form) File() *File {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file
}

// AttachFile validates and attaches a file. Drag-and-drop and the file
// picker go through the same check and fail with the same error. A
// rejected file leaves the previous attachment in place.
func (f *Form) AttachFile(src Source, name, contentType string, data []byte) error {
	if int64(len(data)) > f.maxBytes {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, name, f.maxBytes)
	}
	if !IsPlainText(name, contentType, data) {
		return ErrNotPlainText
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting {
		return ErrSubmitInFlight
	}
	f.file = &File{Name: filepath.Base(name), Data: data, Source: src}
	return nil
}

// Submitting reports whether a submission is in flight.
func (f *Form) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// MaxBytes returns the upload limit.
func (f *Form) MaxBytes() int64 { return f.maxBytes }

// RemoveFile detaches the current file.
func (f *Form) RemoveFile() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting {
		return ErrSubmitInFlight
	}
	f.file = nil
	return nil
}

// IsPlainText reports whether an upload is a text/plain file. A missing or
// generic content type falls back to the .txt extension and content
// sniffing.
func IsPlainText(name, contentType string, data []byte) bool {
	if contentType != "" && contentType != "application/octet-stream" {
		mt, _, err := mime.ParseMediaType(contentType)
		return err == nil && mt == "text/plain"
	}
	if !strings.EqualFold(filepath.Ext(name), ".txt") {
		return false
	}
	return strings.HasPrefix(http.DetectContentType(data), "text/plain")
}

// Validate checks the form without touching the network.
func (f *Form) Validate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return validate(f.text, f.file)
}

func validate(text string, file *File) error {
	if file == nil && strings.TrimSpace(text) == "" {
		return ErrEmptySubmission
	}
	return nil
}

// Body encodes the form as the multipart body of POST /tagging/run: a file
// part named "file" or a "text_form" field, plus an empty "payload" field.
// When both are present the file is sent.
func (f *Form) Body() (*bytes.Buffer, string, error) {
	f.mu.Lock()
	text, file := f.text, f.file
	f.mu.Unlock()
	if err := validate(text, file); err != nil {
		return nil, "", err
	}
	return encode(text, file)
}

func encode(text string, file *File) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if file != nil {
		part, err := w.CreateFormFile("file", file.Name)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write file part: %w", err)
		}
	} else if err := w.WriteField("text_form", text); err != nil {
		return nil, "", fmt.Errorf("failed to write text field: %w", err)
	}
	if err := w.WriteField("payload", ""); err != nil {
		return nil, "", fmt.Errorf("failed to write payload field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

// Submit validates and sends the form. On success the form is cleared; on
// failure its contents are kept for a retry. The form is frozen from the
// moment its contents are read until the run ends, so the clear never
// drops input that arrived meanwhile.
func (f *Form) Submit(ctx context.Context, runner Runner) (*models.TaggingResult, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	text, file := f.text, f.file
	if err := validate(text, file); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.submitting = true
	f.mu.Unlock()

	res, err := f.run(ctx, runner, text, file)

	f.mu.Lock()
	if err == nil {
		f.text = ""
		f.file = nil
	}
	f.submitting = false
	f.mu.Unlock()
	return res, err
}

func (f *Form) run(ctx context.Context, runner Runner, text string, file *File) (*models.TaggingResult, error) {
	body, contentType, err := encode(text, file)
	if err != nil {
		return nil, err
	}
	return runner.RunTagging(ctx, body, contentType)
}

// Summary renders a tagging result for a notification, e.g.
// "Created 1 sentence and 2 tokens".
func Summary(res *models.TaggingResult) string {
	return fmt.Sprintf("Created %s and %s",
		count(res.SentencesCreated, "sentence"),
		count(res.TokensCreated, "token"))
}

func count(n int, noun string) string {
	if n != 1 {
		noun = inflection.Plural(noun)
	}
	return fmt.Sprintf("%d %s", n, noun)
}
