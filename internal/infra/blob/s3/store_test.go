package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"itemcore/internal/blob/core"
)

// fakeBucket answers the subset of the S3 REST API the store uses, for a
// single path-style bucket.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	fail    bool
}

type fakeObject struct {
	body        []byte
	contentType string
	meta        http.Header
}

func (f *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return respond(http.StatusForbidden, errorXML("AccessDenied"), nil), nil
	}
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req.URL.Query().Get("prefix")), nil
	}
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			body := errorXML("NoSuchKey")
			if req.Method == http.MethodHead {
				body = ""
			}
			return respond(http.StatusNotFound, body, nil), nil
		}
		header := http.Header{
			"Content-Length": {fmt.Sprint(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {`"etag-` + key + `"`},
			"Last-Modified":  {time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)},
		}
		for k, v := range obj.meta {
			header[k] = v
		}
		body := string(obj.body)
		if req.Method == http.MethodHead {
			body = ""
		}
		return respond(http.StatusOK, body, header), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		meta := http.Header{}
		for k, v := range req.Header {
			if strings.HasPrefix(strings.ToLower(k), "x-amz-meta-") {
				meta[k] = v
			}
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type"), meta: meta}
		return respond(http.StatusOK, "", http.Header{"Etag": {`"etag"`}}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, "", nil), nil
	}
	return respond(http.StatusNotImplemented, "", nil), nil
}

func (f *fakeBucket) list(prefix string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}})
}

func errorXML(code string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><Error><Code>` + code + `</Code><Message>` + code + `</Message></Error>`
}

func respond(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func newTestStore(t *testing.T) (*Store, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: make(map[string]fakeObject)}
	store, err := New(context.Background(), Config{
		Bucket:          "items",
		Endpoint:        "https://s3.test.local",
		AccessKeyID:     "AKIDTEST",
		SecretAccessKey: "secret",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: bucket},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, bucket
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	store, bucket := newTestStore(t)
	if store.Driver() != core.DriverS3 {
		t.Fatalf("unexpected driver %s", store.Driver())
	}

	info, err := store.Put(ctx, "backups/item-1/v1.json", bytes.NewReader([]byte(`{"id":"item-1"}`)), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"item": "item-1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 15 || info.ContentType != "application/json" {
		t.Fatalf("unexpected info %+v", info)
	}
	if string(bucket.objects["backups/item-1/v1.json"].body) != `{"id":"item-1"}` {
		t.Fatalf("unexpected stored body %q", bucket.objects["backups/item-1/v1.json"].body)
	}

	if _, err := store.Put(ctx, "backups/item-1/v1.json", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists error, got %v", err)
	}

	got, rc, err := store.Get(ctx, "backups/item-1/v1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"id":"item-1"}` || got.Metadata["item"] != "item-1" {
		t.Fatalf("unexpected object %q %+v", body, got)
	}

	existed, err := store.Delete(ctx, "backups/item-1/v1.json")
	if err != nil || !existed {
		t.Fatalf("delete: %v %v", existed, err)
	}
	existed, err = store.Delete(ctx, "backups/item-1/v1.json")
	if err != nil || existed {
		t.Fatalf("expected missing delete to report false, got %v %v", existed, err)
	}
	if _, _, err := store.Get(ctx, "backups/item-1/v1.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPutBuffersUnseekableReaders(t *testing.T) {
	ctx := context.Background()
	store, bucket := newTestStore(t)
	r := io.MultiReader(strings.NewReader("part1-"), strings.NewReader("part2"))
	if _, err := store.Put(ctx, "attachments/a", r, core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if string(bucket.objects["attachments/a"].body) != "part1-part2" {
		t.Fatalf("unexpected body %q", bucket.objects["attachments/a"].body)
	}
}

func TestListSortsKeys(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	for _, key := range []string{"attachments/a", "attachments/c", "attachments/b", "backups/x"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "attachments/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var keys []string
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	if strings.Join(keys, ",") != "attachments/a,attachments/b,attachments/c" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestBackendFailuresAreWrapped(t *testing.T) {
	ctx := context.Background()
	store, bucket := newTestStore(t)
	bucket.fail = true
	_, err := store.Put(ctx, "k", strings.NewReader("x"), core.PutOptions{})
	if err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if _, err := store.List(ctx, ""); err == nil {
		t.Fatalf("expected list error")
	}
}
