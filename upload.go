package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	s3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

func putObject(ctx context.Context, svc s3iface.S3API, bucket, key string, body io.ReadSeeker) error {
	_, err := svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	return err
}

func objectExists(ctx context.Context, svc s3iface.S3API, bucket, key string) (bool, error) {
	_, err := svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

// Publish splits file like SplitFile but uploads every chunk to
// target (s3://bucket/prefix) instead of writing it to disk. It returns the
// URLs of the uploaded objects in the order a manifest section should list
// them.
func Publish(ctx context.Context, svc s3iface.S3API, file, target string, cfg Config) ([]string, error) {
	bucket, prefix, err := parseS3URL(target)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(file)
	first := path.Join(prefix, chunkName(name, 0))
	exists, err := objectExists(ctx, svc, bucket, first)
	if err != nil {
		return nil, err
	}
	if exists {
		log.Printf("Chunk already exists at s3://%v/%v - stopping", bucket, first)
		return nil, fmt.Errorf("%w: s3://%v/%v", ErrAlreadyPublished, bucket, first)
	}

	fd, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	defer fd.Close()
	info, err := fd.Stat()
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %v is not a regular file", ErrSourceUnreadable, file)
	}
	size := info.Size()
	expected := chunkCount(size, cfg.ChunkSize)

	var urls []string
	count, err := forEachChunk(fd, size, cfg.ChunkSize, func(index int, section *io.SectionReader) error {
		key := path.Join(prefix, chunkName(name, index))
		if err := putObject(ctx, svc, bucket, key, section); err != nil {
			return fmt.Errorf("error uploading s3://%v/%v: %w", bucket, key, err)
		}
		urls = append(urls, fmt.Sprintf("s3://%v/%v", bucket, key))
		log.Printf("Progress: %v / %v chunks", index+1, expected)
		return nil
	})
	if err != nil {
		return urls, err
	}

	if cfg.WriteRecord {
		body, err := json.Marshal(splitRecord{Size: size, ChunkSize: cfg.ChunkSize, Count: count})
		if err != nil {
			return urls, err
		}
		key := path.Join(prefix, name+recordSuffix)
		if err := putObject(ctx, svc, bucket, key, bytes.NewReader(body)); err != nil {
			return urls, fmt.Errorf("error uploading split record: %w", err)
		}
		urls = append(urls, fmt.Sprintf("s3://%v/%v", bucket, key))
	}
	return urls, nil
}

// manifestSection renders a manifest section listing urls under folder.
func manifestSection(folder string, urls []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%v]\n", folder)
	for _, u := range urls {
		sb.WriteString(u)
		sb.WriteByte('\n')
	}
	return sb.String()
}
