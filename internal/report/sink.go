package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Format is a report encoding.
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// FormatFor picks the encoding from a destination's extension.
func FormatFor(dest string) Format {
	switch strings.ToLower(filepath.Ext(dest)) {
	case ".json":
		return FormatJSON
	case ".msgpack", ".mp":
		return FormatMsgpack
	default:
		return FormatText
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatMsgpack:
		return "application/msgpack"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Encode serializes r in format f.
func Encode(f Format, r *optimization.Report) ([]byte, error) {
	switch f {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode report as json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatMsgpack:
		data, err := msgpack.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("failed to encode report as msgpack: %w", err)
		}
		return data, nil
	default:
		var buf bytes.Buffer
		if err := WriteText(&buf, r); err != nil {
			return nil, fmt.Errorf("failed to render report: %w", err)
		}
		return buf.Bytes(), nil
	}
}

// Decode parses a JSON or msgpack encoded report.
func Decode(f Format, data []byte) (*optimization.Report, error) {
	var r optimization.Report
	switch f {
	case FormatJSON:
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to decode json report: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to decode msgpack report: %w", err)
		}
	default:
		return nil, fmt.Errorf("cannot decode %s reports", f)
	}
	return &r, nil
}

// Sink delivers a finished report.
type Sink interface {
	Write(ctx context.Context, r *optimization.Report) error
}

// WriterSink writes the encoded report to an io.Writer.
type WriterSink struct {
	w      io.Writer
	format Format
}

// NewWriterSink creates a sink over w.
func NewWriterSink(w io.Writer, format Format) *WriterSink {
	return &WriterSink{w: w, format: format}
}

// Write implements Sink.
func (s *WriterSink) Write(_ context.Context, r *optimization.Report) error {
	data, err := Encode(s.format, r)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// FileSink writes the report to a local file, replacing it atomically.
type FileSink struct {
	path   string
	format Format
	log    zerolog.Logger
}

// NewFileSink creates a sink for path; the format follows its extension.
func NewFileSink(path string, log zerolog.Logger) *FileSink {
	return &FileSink{
		path:   path,
		format: FormatFor(path),
		log:    log.With().Str("component", "file_sink").Logger(),
	}
}

// Write implements Sink.
func (s *FileSink) Write(_ context.Context, r *optimization.Report) error {
	data, err := Encode(s.format, r)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close report: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to move report into place: %w", err)
	}

	s.log.Info().
		Str("path", s.path).
		Str("format", string(s.format)).
		Int("bytes", len(data)).
		Msg("Report written")

	return nil
}

// MultiSink fans a report out to several sinks, stopping at the first error.
type MultiSink []Sink

// Write implements Sink.
func (m MultiSink) Write(ctx context.Context, r *optimization.Report) error {
	for _, s := range m {
		if err := s.Write(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// NewSink picks a sink for dest:
//
//	"-"                 stdout, text
//	"s3://bucket/key"   object upload, format from the key extension
//	anything else       local file, format from the extension
func NewSink(ctx context.Context, dest string, s3opts S3Options, log zerolog.Logger) (Sink, error) {
	switch {
	case dest == "" || dest == "-":
		return NewWriterSink(os.Stdout, FormatText), nil
	case strings.HasPrefix(dest, "s3://"):
		bucket, key, err := ParseS3URL(dest)
		if err != nil {
			return nil, err
		}
		return NewS3Sink(ctx, s3opts, bucket, key, log)
	default:
		return NewFileSink(dest, log), nil
	}
}
