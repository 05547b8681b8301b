// Package metadata turns an uploaded image into a content-addressed token
// URI: pin the image bytes, pin a metadata document referencing them, return
// ipfs://<cid> of the document.
package metadata

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxImageBytes caps the image payload at 10 MiB.
const maxImageBytes = 10 << 20

// PinStore is the content-addressing capability (satisfied by ipfs.Client).
type PinStore interface {
	PinFile(ctx context.Context, name string, r io.Reader) (string, error)
	PinJSON(ctx context.Context, doc any) (string, error)
}

// TokenMetadata is the ERC-721 metadata document.
type TokenMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	MintedAt    string `json:"minted_at"`
}

type Preparer struct {
	store PinStore
	http  *http.Client
	log   *zap.Logger
}

func NewPreparer(store PinStore, log *zap.Logger) *Preparer {
	return &Preparer{
		store: store,
		http:  &http.Client{Timeout: 30 * time.Second},
		log:   log,
	}
}

// Prepare resolves the image, pins it, pins a metadata document referencing
// it, and returns the token URI. The store may embed timestamps in its
// wrappers, so equal inputs do not imply equal URIs.
func (p *Preparer) Prepare(ctx context.Context, imageURL string) (string, error) {
	img, err := p.resolveImage(ctx, imageURL)
	if err != nil {
		return "", fmt.Errorf("resolve image: %w", err)
	}

	imageCID, err := p.store.PinFile(ctx, "token-image", bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("pin image: %w", err)
	}
	p.log.Info("image pinned", zap.String("cid", imageCID), zap.Int("bytes", len(img)))

	doc := TokenMetadata{
		Name:        "justCOINit Token",
		Description: "A social media post minted as a token on Base Mainnet.",
		Image:       "ipfs://" + imageCID,
		MintedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	metaCID, err := p.store.PinJSON(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("pin metadata: %w", err)
	}
	p.log.Info("metadata pinned", zap.String("cid", metaCID))

	return "ipfs://" + metaCID, nil
}

// resolveImage accepts http(s) URLs and data: URIs (the upload widget hands
// over base64 data URIs).
func (p *Preparer) resolveImage(ctx context.Context, imageURL string) ([]byte, error) {
	if strings.HasPrefix(imageURL, "data:") {
		return decodeDataURI(imageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	// read one byte past the cap so an oversized body is detected, not truncated
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return raw, nil
}

func decodeDataURI(uri string) ([]byte, error) {
	idx := strings.Index(uri, ",")
	if idx < 0 {
		return nil, fmt.Errorf("malformed data uri")
	}
	header, payload := uri[:idx], uri[idx+1:]
	if !strings.HasSuffix(header, ";base64") {
		return []byte(payload), nil
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data uri: %w", err)
	}
	if len(raw) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return raw, nil
}
