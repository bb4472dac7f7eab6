package s3

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a Store whose HTTP transport is an in-process fake
// bucket. It implements the PutObject, GetObject, DeleteObject and
// ListObjectsV2 calls Store makes, paging list results two keys at a time.
func NewMockForTests() *Store {
	bucket := &fakeBucket{objects: make(map[string][]byte), pageSize: 2}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: bucket}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return &Store{client: client, bucket: "mock-bucket"}
}

type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
}

type listResult struct {
	XMLName               xml.Name     `xml:"ListBucketResult"`
	IsTruncated           bool         `xml:"IsTruncated"`
	KeyCount              int          `xml:"KeyCount"`
	NextContinuationToken string       `xml:"NextContinuationToken,omitempty"`
	Contents              []listObject `xml:"Contents"`
}

type listObject struct {
	Key          string `xml:"Key"`
	Size         int    `xml:"Size"`
	LastModified string `xml:"LastModified"`
}

const noSuchKey = `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`

func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")

	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		return b.list(req)
	case req.Method == http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			if body, err = decodeChunked(body); err != nil {
				return respond(http.StatusBadRequest, nil, ""), nil
			}
		}
		b.objects[key] = body
		return respond(http.StatusOK, nil, ""), nil
	case req.Method == http.MethodGet:
		body, ok := b.objects[key]
		if !ok {
			return respond(http.StatusNotFound, []byte(noSuchKey), "application/xml"), nil
		}
		return respond(http.StatusOK, append([]byte(nil), body...), contentType), nil
	case req.Method == http.MethodDelete:
		delete(b.objects, key)
		return respond(http.StatusNoContent, nil, ""), nil
	}
	return respond(http.StatusNotImplemented, nil, ""), nil
}

func (b *fakeBucket) list(req *http.Request) (*http.Response, error) {
	query := req.URL.Query()
	prefix := query.Get("prefix")
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if token := query.Get("continuation-token"); token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := min(start+b.pageSize, len(keys))
	result := listResult{KeyCount: end - start}
	for _, k := range keys[start:end] {
		result.Contents = append(result.Contents, listObject{
			Key:          k,
			Size:         len(b.objects[k]),
			LastModified: time.Now().UTC().Format(time.RFC3339),
		})
	}
	if end < len(keys) {
		result.IsTruncated = true
		result.NextContinuationToken = strconv.Itoa(end)
	}
	body, err := xml.Marshal(result)
	if err != nil {
		return nil, err
	}
	return respond(http.StatusOK, body, "application/xml"), nil
}

func respond(status int, body []byte, contentType string) *http.Response {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// decodeChunked strips aws-chunked framing: hex size lines, optionally with
// ";chunk-signature=..." extensions, each followed by that many bytes, ending
// with a zero-size chunk and optional trailers.
func decodeChunked(body []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(body))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimRight(line, "\r\n"), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size %q: %w", sizeHex, err)
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, r, size); err != nil {
			return nil, err
		}
		if _, err := r.ReadString('\n'); err != nil {
			return nil, err
		}
	}
}
