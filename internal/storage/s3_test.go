package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/clipqueue/client/internal/config"
)

type uploaderStub struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (u *uploaderStub) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	u.input = input
	data, _ := io.ReadAll(input.Body)
	u.body = string(data)
	return &manager.UploadOutput{}, u.err
}

func TestS3SinkSave(t *testing.T) {
	stub := &uploaderStub{}
	sink := NewS3SinkWithUploader(stub, "clips", "/user-1/", "https://cdn.example.com/")

	location, err := sink.Save(context.Background(), "My Video.mp4", strings.NewReader("bytes"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if location != "https://cdn.example.com/user-1/My Video.mp4" {
		t.Fatalf("unexpected location %q", location)
	}
	if aws.ToString(stub.input.Bucket) != "clips" || aws.ToString(stub.input.Key) != "user-1/My Video.mp4" {
		t.Fatalf("unexpected input: bucket=%s key=%s", aws.ToString(stub.input.Bucket), aws.ToString(stub.input.Key))
	}
	if aws.ToString(stub.input.ContentType) != "video/mp4" || stub.body != "bytes" {
		t.Fatalf("unexpected upload: type=%s body=%q", aws.ToString(stub.input.ContentType), stub.body)
	}
}

func TestS3SinkWithoutPublicURL(t *testing.T) {
	sink := NewS3SinkWithUploader(&uploaderStub{}, "clips", "", "")
	location, err := sink.Save(context.Background(), "a.mp4", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if location != "s3://clips/a.mp4" {
		t.Fatalf("unexpected location %q", location)
	}
}

func TestS3SinkUploadError(t *testing.T) {
	sink := NewS3SinkWithUploader(&uploaderStub{err: errors.New("denied")}, "clips", "", "")
	if _, err := sink.Save(context.Background(), "a.mp4", strings.NewReader("x")); err == nil {
		t.Fatal("expected error")
	}
	if _, err := sink.Save(context.Background(), "", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestNewS3SinkRequiresBucket(t *testing.T) {
	if _, err := NewS3Sink(context.Background(), config.ObjectStoreConfig{}, ""); err == nil {
		t.Fatal("expected error without bucket")
	}
}
