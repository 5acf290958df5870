package gdpull

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

func TestLocalSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	sink := NewLocalSink(dir)
	require.Equal(t, dir, sink.String())
	require.NoError(t, sink.Prepare(t.Context()))
	defer sink.Release()
	require.DirExists(t, dir)
	require.FileExists(t, filepath.Join(dir, lockFileName))

	var verifyErr *WriteVerificationError
	require.ErrorAs(t, sink.Verify(t.Context(), "hello.txt"), &verifyErr)
	require.Equal(t, filepath.Join(dir, "hello.txt"), verifyErr.Path)

	result, err := sink.Write(t.Context(), "hello.txt", strings.NewReader("hello world"), "text/plain")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "hello.txt"), result.Location)
	require.EqualValues(t, 11, result.Size)
	require.NoError(t, sink.Verify(t.Context(), "hello.txt"))

	result, err = sink.Write(t.Context(), "hello.txt", strings.NewReader("bye"), "text/plain")
	require.NoError(t, err)
	require.EqualValues(t, 3, result.Size)
	bs, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	require.Equal(t, "bye", string(bs))
	require.Empty(t, partialFiles(t, dir))

	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
	require.Error(t, sink.Verify(t.Context(), "sub"))
}

func partialFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, partialPattern))
	require.NoError(t, err)
	return matches
}

func TestLocalSink_PartialSuffixedNames(t *testing.T) {
	dir := t.TempDir()
	sink := NewLocalSink(dir)
	require.NoError(t, sink.Prepare(t.Context()))
	defer sink.Release()

	_, err := sink.Write(t.Context(), "notes.partial", strings.NewReader("draft"), "text/plain")
	require.NoError(t, err)
	_, err = sink.Write(t.Context(), "notes", strings.NewReader("final"), "text/plain")
	require.NoError(t, err)

	require.NoError(t, sink.Verify(t.Context(), "notes.partial"))
	require.NoError(t, sink.Verify(t.Context(), "notes"))
	bs, err := os.ReadFile(filepath.Join(dir, "notes.partial"))
	require.NoError(t, err)
	require.Equal(t, "draft", string(bs))
	bs, err = os.ReadFile(filepath.Join(dir, "notes"))
	require.NoError(t, err)
	require.Equal(t, "final", string(bs))
	require.Empty(t, partialFiles(t, dir))

	info, err := os.Stat(filepath.Join(dir, "notes"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestLocalSink_ReleaseAllowsNextRun(t *testing.T) {
	dir := t.TempDir()
	first := NewLocalSink(dir)
	require.NoError(t, first.Prepare(t.Context()))
	require.NoError(t, first.Release())

	second := NewLocalSink(dir)
	require.NoError(t, second.Prepare(t.Context()))
	require.NoError(t, second.Release())
}

type stubS3Client struct {
	mu        sync.Mutex
	objects   map[string][]byte
	bucketErr error
	skipStore bool
	putInputs []*s3.PutObjectInput
}

func newStubS3Client() *stubS3Client {
	return &stubS3Client{objects: make(map[string][]byte)}
}

func (c *stubS3Client) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, c.bucketErr
}

func (c *stubS3Client) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putInputs = append(c.putInputs, params)
	bs, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if !c.skipStore {
		c.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)] = bs
	}
	return &s3.PutObjectOutput{}, nil
}

func (c *stubS3Client) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bs, ok := c.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(bs)))}, nil
}

func TestS3Sink_Pull(t *testing.T) {
	server, stub := NewStub(t)
	defer server.Close()
	setupFolder(stub)
	client := newStubS3Client()
	sink := NewS3SinkWithClient(client, "my-bucket", "drive/reports")
	require.Equal(t, "s3://my-bucket/drive/reports", sink.String())

	puller := newTestPuller(t, newStubClient(t, server), nil, nil)
	result, err := puller.Pull(t.Context(), testFolderID, sink)
	require.NoError(t, err)
	require.Equal(t, 4, result.Succeeded)
	require.Equal(t, "pdf content", string(client.objects["my-bucket/drive/reports/report.pdf"]))
	require.Contains(t, client.objects, "my-bucket/drive/reports/Meeting Notes.docx")
	require.Equal(t, "s3://my-bucket/drive/reports/report.pdf", result.Files[3].Location)
	for _, input := range client.putInputs {
		require.NotNil(t, input.ContentLength)
	}
}

func TestS3Sink_Errors(t *testing.T) {
	client := newStubS3Client()
	client.bucketErr = errors.New("access denied")
	sink := NewS3SinkWithClient(client, "my-bucket", "")
	var destErr *DestinationError
	require.ErrorAs(t, sink.Prepare(t.Context()), &destErr)

	client = newStubS3Client()
	client.skipStore = true
	sink = NewS3SinkWithClient(client, "my-bucket", "")
	_, err := sink.Write(t.Context(), "a.txt", strings.NewReader("a"), "text/plain")
	require.NoError(t, err)
	var verifyErr *WriteVerificationError
	require.ErrorAs(t, sink.Verify(t.Context(), "a.txt"), &verifyErr)
	require.Equal(t, "s3://my-bucket/a.txt", verifyErr.Path)
}

func TestS3Sink_ReleaseIsNoop(t *testing.T) {
	sink := NewS3SinkWithClient(newStubS3Client(), "my-bucket", "")
	require.NoError(t, sink.Release())
}
