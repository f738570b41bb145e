// Package objectstore uploads oversized audio ahead of a staged
// recognizer call, and stages finished audio/video artifacts for
// delivery via a CDN base URL.
//
// Grounded on the teacher's internal/mcpserver/storage.go Storage
// (S3 PutObject + CDN URL composition), generalized from a fixed
// "audio/<podcastID>.mp3" key to an arbitrary key/content-type per call.
package objectstore

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store handles S3 uploads for staged-path recognizer inputs and
// finished dub artifacts.
type Store struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string
}

// New creates an S3-backed object store.
func New(client *s3.Client, bucket, cdnBaseURL string) *Store {
	return &Store{client: client, bucket: bucket, cdnBaseURL: cdnBaseURL}
}

// Upload puts the file at localPath under key, returning the object key
// and its CDN-relative public URL.
func (s *Store) Upload(ctx context.Context, key, localPath, contentType string) (string, string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", "", fmt.Errorf("objectstore: open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", "", fmt.Errorf("objectstore: stat %s: %w", localPath, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          f,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return "", "", fmt.Errorf("objectstore: put %s: %w", key, err)
	}

	url := s.cdnBaseURL + "/" + key
	return key, url, nil
}

// AudioKey builds the deterministic staged-upload key for a job's
// decoded audio, ahead of a staged recognizer call.
func AudioKey(jobID, ext string) string {
	return fmt.Sprintf("recognize-staging/%s/audio.%s", jobID, ext)
}
