package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/golang/snappy"

	"github.com/medadhere/backend/internal/models"
	"github.com/medadhere/backend/internal/remote"
)

// fakeAPI is an in-memory bucket. Listings return two keys per page.
type fakeAPI struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	failPut error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: make(map[string][]byte)}
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := start + 2
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

var testNow = time.UnixMilli(1_700_000_000_000)

func newTestBackend() (*Backend, *fakeAPI) {
	api := newFakeAPI()
	b := NewBackend(api, "bucket", "medadhere")
	b.SetClock(func() time.Time { return testNow })
	return b, api
}

// =====================================================
// Create / List
// =====================================================

func TestBackend_CreateAndList(t *testing.T) {
	b, api := newTestBackend()
	ctx := context.Background()

	for _, name := range []string{"Aspirin", "Metformin", "Lisinopril"} {
		if _, err := b.Create(ctx, "u1", models.KindMedication, models.Record{Name: name}); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}
	if _, err := b.Create(ctx, "u2", models.KindMedication, models.Record{Name: "Other"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for k, v := range api.objects {
		if !strings.HasPrefix(k, "medadhere/") || !strings.HasSuffix(k, ".json") {
			t.Errorf("unexpected key %q", k)
		}
		if _, err := snappy.Decode(nil, v); err != nil {
			t.Errorf("object %q is not snappy encoded: %v", k, err)
		}
	}

	got, err := b.List(ctx, "u1", models.KindMedication)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List() returned %d records, want 3", len(got))
	}
	for _, r := range got {
		if r.OwnerID != "u1" || r.CloudID == "" {
			t.Errorf("record metadata = owner %q cloudId %q", r.OwnerID, r.CloudID)
		}
		if r.UpdatedAt != testNow.UnixMilli() || r.SyncedAt != testNow.UnixMilli() {
			t.Errorf("timestamps = %d/%d, want server clock", r.UpdatedAt, r.SyncedAt)
		}
	}
}

func TestBackend_ListEmpty(t *testing.T) {
	b, _ := newTestBackend()
	got, err := b.List(context.Background(), "u1", models.KindADRReport)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("List() = %v, want empty", got)
	}
}

func TestBackend_CreatePutFailure(t *testing.T) {
	b, api := newTestBackend()
	api.failPut = errors.New("access denied")
	if _, err := b.Create(context.Background(), "u1", models.KindMedication, models.Record{Name: "x"}); err == nil {
		t.Error("Create() error = nil, want error")
	}
}

// =====================================================
// Update / Delete
// =====================================================

func TestBackend_Update(t *testing.T) {
	b, _ := newTestBackend()
	ctx := context.Background()

	created, err := b.Create(ctx, "u1", models.KindMedication, models.Record{Name: "Aspirin", Dosage: "100mg"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	later := testNow.Add(time.Minute)
	b.SetClock(func() time.Time { return later })
	updated, err := b.Update(ctx, "u1", models.KindMedication, created.CloudID, models.Record{Name: "Aspirin", Dosage: "200mg"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Dosage != "200mg" || updated.UpdatedAt != later.UnixMilli() {
		t.Errorf("Update() = %+v", updated)
	}

	got, _ := b.List(ctx, "u1", models.KindMedication)
	if len(got) != 1 || got[0].Dosage != "200mg" {
		t.Errorf("List() after update = %+v", got)
	}
}

func TestBackend_UpdateNotFound(t *testing.T) {
	b, _ := newTestBackend()
	_, err := b.Update(context.Background(), "u1", models.KindMedication, "missing", models.Record{Name: "x"})
	if !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestBackend_DeleteTombstones(t *testing.T) {
	b, _ := newTestBackend()
	ctx := context.Background()

	created, _ := b.Create(ctx, "u1", models.KindAdherence, models.Record{MedicationID: "m1", Taken: true})
	deleted, err := b.Delete(ctx, "u1", models.KindAdherence, created.CloudID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted.Deleted || deleted.DeletedAt != testNow.UnixMilli() {
		t.Errorf("Delete() = %+v, want tombstone", deleted)
	}

	got, _ := b.List(ctx, "u1", models.KindAdherence)
	if len(got) != 1 || !got[0].Deleted {
		t.Errorf("List() after delete = %+v, want one tombstone", got)
	}
}

func TestBackend_DeleteNotFound(t *testing.T) {
	b, _ := newTestBackend()
	_, err := b.Delete(context.Background(), "u1", models.KindMedication, "missing")
	if !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestBackend_CorruptObject(t *testing.T) {
	b, api := newTestBackend()
	api.objects["medadhere/u1/medications/bad.json"] = []byte{0xff}
	if _, err := b.List(context.Background(), "u1", models.KindMedication); err == nil {
		t.Error("List() error = nil, want decode error")
	}
}
