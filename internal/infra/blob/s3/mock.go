package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMock returns a Store wired to an in-process fake S3 endpoint. It serves
// the HeadObject, GetObject, PutObject, DeleteObject and ListObjectsV2 calls the
// archive makes, which lets higher layers run archive flows without network access.
func NewMock(ctx context.Context) (*Store, error) {
	rt := &fakeBucket{objects: make(map[string]fakeObject)}
	return New(ctx, Config{
		Bucket:          "labcore-archive",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
	})
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    http.Header
}

func emptyResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}
}

func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return b.list(req.URL.Query().Get("prefix")), nil
	}
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		obj, ok := b.objects[key]
		if !ok {
			return emptyResponse(http.StatusNotFound), nil
		}
		header := http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {`"etag-` + strconv.Itoa(len(obj.body)) + `"`},
			"Last-Modified":  {time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)},
		}
		for k, v := range obj.metadata {
			header[k] = v
		}
		body := io.NopCloser(bytes.NewReader(nil))
		if req.Method == http.MethodGet {
			body = io.NopCloser(bytes.NewReader(obj.body))
		}
		return &http.Response{StatusCode: http.StatusOK, Body: body, Header: header}, nil
	case http.MethodPut:
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if decoded, ok := decodeChunked(raw); ok {
			raw = decoded
		}
		md := http.Header{}
		for k, v := range req.Header {
			if strings.HasPrefix(strings.ToLower(k), "x-amz-meta-") {
				md[k] = v
			}
		}
		b.objects[key] = fakeObject{body: raw, contentType: req.Header.Get("Content-Type"), metadata: md}
		resp := emptyResponse(http.StatusOK)
		resp.Header.Set("Etag", `"etag"`)
		return resp, nil
	case http.MethodDelete:
		delete(b.objects, key)
		return emptyResponse(http.StatusNoContent), nil
	}
	return emptyResponse(http.StatusNotImplemented), nil
}

func (b *fakeBucket) list(prefix string) *http.Response {
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&sb, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(b.objects[k].body))
	}
	sb.WriteString("</ListBucketResult>")
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(sb.String())),
		Header:     http.Header{"Content-Type": {"application/xml"}},
	}
}

// decodeChunked unwraps a single-chunk aws-chunked payload:
// <hex size>\r\n<body>\r\n0\r\n[trailers]
func decodeChunked(raw []byte) ([]byte, bool) {
	head, rest, ok := bytes.Cut(raw, []byte("\r\n"))
	if !ok {
		return nil, false
	}
	size, err := strconv.ParseInt(string(bytes.TrimSpace(head)), 16, 64)
	if err != nil || size < 0 || int64(len(rest)) < size+2 {
		return nil, false
	}
	body, tail := rest[:size], rest[size:]
	if !bytes.HasPrefix(tail, []byte("\r\n0")) {
		return nil, false
	}
	return body, true
}
