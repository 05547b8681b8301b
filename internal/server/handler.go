// Package server exposes the wallet session and mint pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/justcoinit/basemint/internal/mint"
	"github.com/justcoinit/basemint/internal/wallet"
)

// SessionControl is the slice of the wallet session the handlers drive
// (satisfied by *wallet.Session).
type SessionControl interface {
	Connect(ctx context.Context) error
	Disconnect()
	Snapshot() wallet.Info
	IsConnected() bool
	Address() common.Address
}

// Minter is the mint pipeline capability (satisfied by *mint.Orchestrator).
type Minter interface {
	Mint(ctx context.Context, imageURL string) (*mint.Result, error)
	Status() mint.Status
	LastResult(ctx context.Context, address string) (*mint.Result, error)
}

type Handler struct {
	session SessionControl
	minter  Minter
	log     *zap.Logger
}

func NewHandler(session SessionControl, minter Minter, log *zap.Logger) *Handler {
	return &Handler{session: session, minter: minter, log: log}
}

// Register mounts the API routes on the given router group.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/session/connect", h.connect)
	r.POST("/session/disconnect", h.disconnect)
	r.GET("/session", h.sessionInfo)
	r.POST("/mint", h.mintToken)
	r.GET("/mint/status", h.mintStatus)
}

func (h *Handler) connect(c *gin.Context) {
	err := h.session.Connect(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, h.session.Snapshot())
	case wallet.IsUserRejected(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet connection was rejected"})
	case errors.Is(err, wallet.ErrNoProvider):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no wallet provider reachable"})
	case errors.Is(err, wallet.ErrNoAccounts):
		c.JSON(http.StatusBadGateway, gin.H{"error": "wallet returned no accounts"})
	default:
		h.log.Error("wallet connect failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "wallet connection failed"})
	}
}

func (h *Handler) disconnect(c *gin.Context) {
	h.session.Disconnect()
	c.JSON(http.StatusOK, h.session.Snapshot())
}

func (h *Handler) sessionInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}

type mintRequest struct {
	ImageURL string `json:"imageUrl" binding:"required"`
}

type mintResponse struct {
	TransactionHash string `json:"transactionHash"`
	TokenID         string `json:"tokenId"`
	Status          string `json:"status"`
}

func (h *Handler) mintToken(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "imageUrl is required"})
		return
	}

	res, err := h.minter.Mint(c.Request.Context(), req.ImageURL)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, mintResponse{
			TransactionHash: res.TransactionHash,
			TokenID:         res.TokenID,
			Status:          mint.StatusConfirmed.String(),
		})
	case errors.Is(err, mint.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "a mint is already in progress"})
	case errors.Is(err, mint.ErrNotConnected):
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet not connected"})
	case wallet.IsUserRejected(err):
		// declined, not broken: the caller may simply try again
		c.JSON(http.StatusBadRequest, gin.H{"error": "transaction was cancelled in the wallet"})
	default:
		h.log.Error("mint failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "mint failed, please try again"})
	}
}

func (h *Handler) mintStatus(c *gin.Context) {
	out := gin.H{"status": h.minter.Status().String()}
	if h.session.IsConnected() {
		last, err := h.minter.LastResult(c.Request.Context(), h.session.Address().Hex())
		if err != nil {
			h.log.Warn("last mint result lookup failed", zap.Error(err))
		} else if last != nil {
			out["lastResult"] = last
		}
	}
	c.JSON(http.StatusOK, out)
}
