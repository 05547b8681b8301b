package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/justcoinit/basemint/internal/mint"
	"github.com/justcoinit/basemint/internal/wallet"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSession struct {
	connectErr error
	connected  bool
	address    common.Address
}

func (s *fakeSession) Connect(ctx context.Context) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

func (s *fakeSession) Disconnect() { s.connected = false }

func (s *fakeSession) Snapshot() wallet.Info {
	info := wallet.Info{Connected: s.connected, ChainID: 8453}
	if s.connected {
		info.Address = s.address.Hex()
	}
	return info
}

func (s *fakeSession) IsConnected() bool { return s.connected }

func (s *fakeSession) Address() common.Address { return s.address }

type fakeMinter struct {
	result *mint.Result
	err    error
	status mint.Status
	last   *mint.Result

	gotImageURL string
}

func (m *fakeMinter) Mint(ctx context.Context, imageURL string) (*mint.Result, error) {
	m.gotImageURL = imageURL
	return m.result, m.err
}

func (m *fakeMinter) Status() mint.Status { return m.status }

func (m *fakeMinter) LastResult(ctx context.Context, address string) (*mint.Result, error) {
	return m.last, nil
}

func newTestRouter(s *fakeSession, m *fakeMinter) *gin.Engine {
	r := gin.New()
	NewHandler(s, m, zap.NewNop()).Register(r.Group("/api"))
	return r
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestConnectReturnsSnapshot(t *testing.T) {
	s := &fakeSession{address: common.HexToAddress("0xabc0000000000000000000000000000000000001")}
	r := newTestRouter(s, &fakeMinter{})

	w := postJSON(r, "/api/session/connect", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var info wallet.Info
	json.Unmarshal(w.Body.Bytes(), &info)
	if !info.Connected || info.Address != s.address.Hex() {
		t.Errorf("snapshot = %+v, want connected with address", info)
	}
}

func TestConnectUserRejected(t *testing.T) {
	s := &fakeSession{connectErr: &wallet.ProviderError{Code: wallet.CodeUserRejected, Msg: "denied"}}
	r := newTestRouter(s, &fakeMinter{})

	w := postJSON(r, "/api/session/connect", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestConnectNoProvider(t *testing.T) {
	s := &fakeSession{connectErr: wallet.ErrNoProvider}
	r := newTestRouter(s, &fakeMinter{})

	w := postJSON(r, "/api/session/connect", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestDisconnectClearsSession(t *testing.T) {
	s := &fakeSession{connected: true, address: common.HexToAddress("0x01")}
	r := newTestRouter(s, &fakeMinter{})

	w := postJSON(r, "/api/session/disconnect", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var info wallet.Info
	json.Unmarshal(w.Body.Bytes(), &info)
	if info.Connected || info.Address != "" {
		t.Errorf("snapshot after disconnect = %+v, want cleared", info)
	}
}

func TestMintSuccess(t *testing.T) {
	s := &fakeSession{connected: true}
	m := &fakeMinter{result: &mint.Result{TransactionHash: "0xdeadbeef", TokenID: "42"}}
	r := newTestRouter(s, m)

	w := postJSON(r, "/api/mint", gin.H{"imageUrl": "https://img.example/a.png"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if m.gotImageURL != "https://img.example/a.png" {
		t.Errorf("image url = %q", m.gotImageURL)
	}
	var resp mintResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.TokenID != "42" || resp.TransactionHash != "0xdeadbeef" || resp.Status != "CONFIRMED" {
		t.Errorf("response = %+v", resp)
	}
}

func TestMintMissingImageURL(t *testing.T) {
	r := newTestRouter(&fakeSession{connected: true}, &fakeMinter{})

	w := postJSON(r, "/api/mint", gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestMintBusyMapsToConflict(t *testing.T) {
	r := newTestRouter(&fakeSession{connected: true}, &fakeMinter{err: mint.ErrBusy})

	w := postJSON(r, "/api/mint", gin.H{"imageUrl": "x"})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", w.Code, w.Body.String())
	}
}

func TestMintErrorMessagesDistinguishDeclineFromFailure(t *testing.T) {
	declined := &fakeMinter{err: &wallet.ProviderError{Code: wallet.CodeUserRejected, Msg: "denied"}}
	broken := &fakeMinter{err: errors.New("rpc exploded")}

	wDeclined := postJSON(newTestRouter(&fakeSession{connected: true}, declined), "/api/mint", gin.H{"imageUrl": "x"})
	wBroken := postJSON(newTestRouter(&fakeSession{connected: true}, broken), "/api/mint", gin.H{"imageUrl": "x"})

	if wDeclined.Code != http.StatusBadRequest {
		t.Errorf("declined status = %d, want 400", wDeclined.Code)
	}
	if wBroken.Code != http.StatusBadGateway {
		t.Errorf("failure status = %d, want 502", wBroken.Code)
	}
	if wDeclined.Body.String() == wBroken.Body.String() {
		t.Error("decline and failure produced identical messages")
	}
}

func TestMintStatusIncludesLastResult(t *testing.T) {
	s := &fakeSession{connected: true, address: common.HexToAddress("0x02")}
	m := &fakeMinter{
		status: mint.StatusConfirmed,
		last:   &mint.Result{TransactionHash: "0xfeed", TokenID: "7"},
	}
	r := newTestRouter(s, m)

	req := httptest.NewRequest(http.MethodGet, "/api/mint/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out struct {
		Status     string       `json:"status"`
		LastResult *mint.Result `json:"lastResult"`
	}
	json.Unmarshal(w.Body.Bytes(), &out)
	if out.Status != "CONFIRMED" {
		t.Errorf("status = %q, want CONFIRMED", out.Status)
	}
	if out.LastResult == nil || out.LastResult.TokenID != "7" {
		t.Errorf("lastResult = %+v", out.LastResult)
	}
}
