package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"maps"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeObject struct {
	data     []byte
	metadata map[string]string
}

// fakeS3 is an in-memory bucket store covering single-part uploads.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	listErr error
}

var _ S3API = (*fakeS3)(nil)

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func objectKey(bucket, key *string) string {
	return aws.ToString(bucket) + "/" + aws.ToString(key)
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectKey(in.Bucket, in.Key)] = fakeObject{data: data, metadata: maps.Clone(in.Metadata)}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[objectKey(in.Bucket, in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data)), Metadata: obj.metadata}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[objectKey(in.Bucket, in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{Metadata: obj.metadata}, nil
}

func (f *fakeS3) ListObjectsV2(context.Context, *s3.ListObjectsV2Input, ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &s3.ListObjectsV2Output{}, nil
}

var errMultipart = errors.New("multipart upload not supported by fake")

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errMultipart
}

func TestS3Destination_KeyLayout(t *testing.T) {
	client := newFakeS3()
	d := NewS3Destination(client, "prices", "backups/home")

	if err := d.Put("unitprice.snapshot", strings.NewReader("data"), 4, 9); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	obj, ok := client.objects["prices/backups/home/unitprice.snapshot"]
	if !ok {
		t.Fatalf("object not stored under prefix, have %d objects", len(client.objects))
	}
	if obj.metadata[versionMetadataKey] != "9" {
		t.Errorf("version metadata = %q, want %q", obj.metadata[versionMetadataKey], "9")
	}
}

func TestS3Destination_ValidateSetup_Error(t *testing.T) {
	client := newFakeS3()
	client.listErr = errors.New("access denied")
	d := NewS3Destination(client, "prices", "")

	if err := d.ValidateSetup(); err == nil {
		t.Error("ValidateSetup() expected error when bucket cannot be listed")
	}
}

func TestS3Destination_Version_MissingMetadata(t *testing.T) {
	client := newFakeS3()
	client.objects["prices/db"] = fakeObject{data: []byte("x")}
	d := NewS3Destination(client, "prices", "")

	v, err := d.Version("db")
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != 0 {
		t.Errorf("Version() = %d, want 0", v)
	}
}
