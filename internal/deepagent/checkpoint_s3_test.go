package deepagent

import (
	"context"
	"testing"
)

func TestS3CheckpointStoreKeyDefaultPrefix(t *testing.T) {
	store := NewS3CheckpointStore(nil, "my-bucket", "")
	if got := store.key("thread-1"); got != "checkpoints/thread-1.json" {
		t.Errorf("key() = %q, want %q", got, "checkpoints/thread-1.json")
	}
}

func TestS3CheckpointStoreKeyCustomPrefix(t *testing.T) {
	store := NewS3CheckpointStore(nil, "my-bucket", "runs")
	if got := store.key("thread-1"); got != "runs/thread-1.json" {
		t.Errorf("key() = %q, want %q", got, "runs/thread-1.json")
	}
}

func TestNewS3ClientWithStaticCredentials(t *testing.T) {
	client, err := NewS3Client(context.Background(), S3ClientOptions{
		Region:          "us-east-1",
		AccessKeyID:     "AKIAFAKE",
		SecretAccessKey: "secret",
		Endpoint:        "http://127.0.0.1:9000",
	})
	if err != nil {
		t.Fatalf("NewS3Client error: %v", err)
	}
	if client == nil {
		t.Fatal("expected non-nil client")
	}
}
