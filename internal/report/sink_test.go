package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFor("out/report.json"))
	assert.Equal(t, FormatJSON, FormatFor("REPORT.JSON"))
	assert.Equal(t, FormatMsgpack, FormatFor("report.msgpack"))
	assert.Equal(t, FormatText, FormatFor("result.txt"))
	assert.Equal(t, FormatText, FormatFor("result"))
}

func TestEncodeDecode(t *testing.T) {
	original := sampleReport()

	for _, f := range []Format{FormatJSON, FormatMsgpack} {
		t.Run(string(f), func(t *testing.T) {
			data, err := Encode(f, original)
			require.NoError(t, err)

			decoded, err := Decode(f, data)
			require.NoError(t, err)

			assert.Equal(t, original.RunID, decoded.RunID)
			assert.True(t, original.GeneratedAt.Equal(decoded.GeneratedAt))
			require.Len(t, decoded.Results, 3)
			assert.Equal(t, original.Results[0].Allocation, decoded.Results[0].Allocation)
			assert.InDelta(t, 0.6, decoded.Results[0].Weights["QLD"], 1e-12)
			assert.False(t, decoded.Results[1].Success)
			require.NotNil(t, decoded.Results[2].Target)
			assert.Equal(t, 0.15, *decoded.Results[2].Target)
		})
	}

	_, err := Decode(FormatText, []byte("Tickers: []"))
	assert.Error(t, err)
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	t.Run("text", func(t *testing.T) {
		path := filepath.Join(dir, "nested", "result.txt")
		require.NoError(t, NewFileSink(path, zerolog.Nop()).Write(ctx, sampleReport()))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "========== Maximises Sharpe ==========")
	})

	t.Run("json replaces existing file", func(t *testing.T) {
		path := filepath.Join(dir, "result.json")
		require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))
		require.NoError(t, NewFileSink(path, zerolog.Nop()).Write(ctx, sampleReport()))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		decoded, err := Decode(FormatJSON, data)
		require.NoError(t, err)
		assert.Equal(t, sampleReport().RunID, decoded.RunID)
	})
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriterSink(&buf, FormatText).Write(context.Background(), sampleReport()))
	assert.Contains(t, buf.String(), "Window size: 365")
}

type failingSink struct{ calls int }

func (f *failingSink) Write(context.Context, *optimization.Report) error {
	f.calls++
	return errors.New("boom")
}

func TestMultiSink_StopsAtFirstError(t *testing.T) {
	var buf bytes.Buffer
	first := &failingSink{}
	second := &failingSink{}

	err := MultiSink{NewWriterSink(&buf, FormatText), first, second}.Write(context.Background(), sampleReport())

	assert.Error(t, err)
	assert.NotEmpty(t, buf.String())
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := ParseS3URL("s3://reports/frontier/2024/result.json")
	require.NoError(t, err)
	assert.Equal(t, "reports", bucket)
	assert.Equal(t, "frontier/2024/result.json", key)

	for _, bad := range []string{"s3://bucket", "s3:///key", "http://bucket/key", "s3://bucket/"} {
		_, _, err := ParseS3URL(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseS3Prefix(t *testing.T) {
	bucket, prefix, err := ParseS3Prefix("s3://backups")
	require.NoError(t, err)
	assert.Equal(t, "backups", bucket)
	assert.Empty(t, prefix)

	_, prefix, err = ParseS3Prefix("s3://backups/frontier/db")
	require.NoError(t, err)
	assert.Equal(t, "frontier/db", prefix)

	_, _, err = ParseS3Prefix("file:///tmp/backups")
	assert.Error(t, err)
}

type fakeUploader struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = input
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &manager.UploadOutput{Location: "https://example.invalid/" + *input.Key}, nil
}

func TestS3Sink_Write(t *testing.T) {
	up := &fakeUploader{}
	sink := newS3Sink(up, "reports", "runs/latest.json", zerolog.Nop())

	require.NoError(t, sink.Write(context.Background(), sampleReport()))

	require.NotNil(t, up.input)
	assert.Equal(t, "reports", *up.input.Bucket)
	assert.Equal(t, "runs/latest.json", *up.input.Key)
	assert.Equal(t, "application/json", *up.input.ContentType)
	assert.Equal(t, sampleReport().RunID, up.input.Metadata["run-id"])

	decoded, err := Decode(FormatJSON, up.body)
	require.NoError(t, err)
	assert.Equal(t, sampleReport().Tickers, decoded.Tickers)
}

func TestS3Sink_UploadError(t *testing.T) {
	sink := newS3Sink(&fakeUploader{err: errors.New("denied")}, "reports", "result.txt", zerolog.Nop())

	err := sink.Write(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://reports/result.txt")
}

func TestNewSink(t *testing.T) {
	ctx := context.Background()

	s, err := NewSink(ctx, "-", S3Options{}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &WriterSink{}, s)

	s, err = NewSink(ctx, filepath.Join(t.TempDir(), "r.msgpack"), S3Options{}, zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, &FileSink{}, s)
	assert.Equal(t, FormatMsgpack, s.(*FileSink).format)

	_, err = NewSink(ctx, "s3://only-bucket", S3Options{}, zerolog.Nop())
	assert.Error(t, err)
}
