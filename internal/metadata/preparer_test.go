package metadata

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type fakeStore struct {
	fileCID string
	fileErr error
	jsonCID string
	jsonErr error

	gotFile []byte
	gotDoc  any
}

func (s *fakeStore) PinFile(ctx context.Context, name string, r io.Reader) (string, error) {
	s.gotFile, _ = io.ReadAll(r)
	return s.fileCID, s.fileErr
}

func (s *fakeStore) PinJSON(ctx context.Context, doc any) (string, error) {
	s.gotDoc = doc
	return s.jsonCID, s.jsonErr
}

func TestPrepareFromHTTPImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg bytes"))
	}))
	defer srv.Close()

	store := &fakeStore{fileCID: "QmImg", jsonCID: "QmMeta"}
	p := NewPreparer(store, zap.NewNop())

	uri, err := p.Prepare(context.Background(), srv.URL+"/post.jpg")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if uri != "ipfs://QmMeta" {
		t.Errorf("uri = %q, want ipfs://QmMeta", uri)
	}
	if string(store.gotFile) != "jpeg bytes" {
		t.Errorf("pinned bytes = %q", store.gotFile)
	}
	doc, ok := store.gotDoc.(TokenMetadata)
	if !ok {
		t.Fatalf("pinned document type %T", store.gotDoc)
	}
	if doc.Image != "ipfs://QmImg" {
		t.Errorf("metadata image = %q, want ipfs://QmImg", doc.Image)
	}
	if doc.Name == "" || doc.Description == "" || doc.MintedAt == "" {
		t.Errorf("incomplete metadata document: %+v", doc)
	}
}

func TestPrepareRejectsOversizedHTTPImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, maxImageBytes+1))
	}))
	defer srv.Close()

	store := &fakeStore{fileCID: "QmImg", jsonCID: "QmMeta"}
	p := NewPreparer(store, zap.NewNop())

	if _, err := p.Prepare(context.Background(), srv.URL+"/huge.png"); err == nil {
		t.Fatal("expected error for oversized image")
	}
	if store.gotFile != nil {
		t.Errorf("pinned %d bytes of an oversized image", len(store.gotFile))
	}
}

func TestPrepareFromDataURI(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("png bytes"))
	store := &fakeStore{fileCID: "QmImg", jsonCID: "QmMeta"}
	p := NewPreparer(store, zap.NewNop())

	if _, err := p.Prepare(context.Background(), "data:image/png;base64,"+payload); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if string(store.gotFile) != "png bytes" {
		t.Errorf("pinned bytes = %q", store.gotFile)
	}
}

func TestPrepareBadDataURI(t *testing.T) {
	p := NewPreparer(&fakeStore{}, zap.NewNop())
	if _, err := p.Prepare(context.Background(), "data:image/png;base64,!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := p.Prepare(context.Background(), "data:nocomma"); err == nil {
		t.Error("expected error for malformed data uri")
	}
}

func TestPrepareImageFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewPreparer(&fakeStore{}, zap.NewNop())
	if _, err := p.Prepare(context.Background(), srv.URL+"/gone.png"); err == nil {
		t.Error("expected error for missing image")
	}
}

func TestPreparePinFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img"))
	}))
	defer srv.Close()

	t.Run("image pin fails", func(t *testing.T) {
		p := NewPreparer(&fakeStore{fileErr: errors.New("pin down")}, zap.NewNop())
		if _, err := p.Prepare(context.Background(), srv.URL); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("metadata pin fails", func(t *testing.T) {
		p := NewPreparer(&fakeStore{fileCID: "QmImg", jsonErr: errors.New("pin down")}, zap.NewNop())
		if _, err := p.Prepare(context.Background(), srv.URL); err == nil {
			t.Error("expected error")
		}
	})
}
