package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	s3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"golang.org/x/time/rate"
)

// Fetcher resolves a manifest or dependency URL to a byte stream.
type Fetcher interface {
	Open(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// RemoteFetcher serves http(s), s3 and file URLs as well as plain paths.
type RemoteFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	region  string
	// endpoint overrides the S3 endpoint and switches to path-style addressing.
	endpoint string
	svc      s3iface.S3API
}

func NewFetcher(cfg Config) *RemoteFetcher {
	f := &RemoteFetcher{
		client:   &http.Client{},
		region:   cfg.S3Region,
		endpoint: cfg.S3Endpoint,
	}
	if cfg.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit))
	}
	return f
}

func newS3Client(region, endpoint string) (*s3.S3, error) {
	awsCfg := aws.NewConfig().WithRegion(region)
	if endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}

func (f *RemoteFetcher) s3Client() (s3iface.S3API, error) {
	if f.svc == nil {
		svc, err := newS3Client(f.region, f.endpoint)
		if err != nil {
			return nil, err
		}
		f.svc = svc
	}
	return f.svc, nil
}

// parseS3URL splits s3://bucket/key into its bucket and key.
func parseS3URL(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 url: %v", rawURL)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

func (f *RemoteFetcher) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	var body io.ReadCloser
	switch u.Scheme {
	case "http", "https":
		body, err = f.openHTTP(ctx, rawURL)
	case "s3":
		body, err = f.openS3(ctx, rawURL)
	case "file":
		body, err = os.Open(filepath.FromSlash(u.Path))
	default:
		// Single letter schemes are Windows drive letters.
		if len(u.Scheme) > 1 {
			return nil, fmt.Errorf("unsupported url scheme %q in %v", u.Scheme, rawURL)
		}
		body, err = os.Open(rawURL)
	}
	if err != nil {
		return nil, err
	}
	if f.limiter != nil {
		body = &rateLimitedReader{ReadCloser: body, limiter: f.limiter, ctx: ctx}
	}
	return body, nil
}

func (f *RemoteFetcher) openHTTP(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching %v: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("error fetching %v: %v", rawURL, resp.Status)
	}
	return resp.Body, nil
}

func (f *RemoteFetcher) openS3(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, err
	}
	svc, err := f.s3Client()
	if err != nil {
		return nil, err
	}
	obj, err := svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Printf("Error getting object: s3://%v/%v", bucket, key)
		return nil, err
	}
	return obj.Body, nil
}

type rateLimitedReader struct {
	io.ReadCloser
	limiter *rate.Limiter
	ctx     context.Context
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	if burst := r.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := r.ReadCloser.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// fileNameFromURL names a download after the last path segment of its URL.
func fileNameFromURL(rawURL string) (string, error) {
	var p string
	if u, err := url.Parse(rawURL); err == nil && len(u.Scheme) > 1 {
		p = u.Path
		if u.Scheme != "file" && u.Scheme != "s3" && u.Scheme != "http" && u.Scheme != "https" {
			return "", fmt.Errorf("unsupported url scheme %q in %v", u.Scheme, rawURL)
		}
	} else {
		p = filepath.ToSlash(rawURL)
	}
	name := path.Base(p)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("cannot derive a file name from %v", rawURL)
	}
	return name, nil
}

// Download fetches rawURL into dir, naming the file after the URL's last path
// segment. A partially written file is removed on failure.
func Download(ctx context.Context, f Fetcher, rawURL, dir string) (string, error) {
	name, err := fileNameFromURL(rawURL)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, name)
	log.Printf("Downloading %v", rawURL)
	body, err := f.Open(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer body.Close()
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("error downloading %v: %w", rawURL, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return "", err
	}
	return dest, nil
}
