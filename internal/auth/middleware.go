package auth

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WalletKey is the gin context key carrying the verified signer address.
const WalletKey = "wallet_address"

// Envelope is the JSON document the wallet personal-signs, transported
// base64-encoded in X-Signed-Message alongside X-Wallet-Address and
// X-Wallet-Signature.
type Envelope struct {
	Action    string `json:"action"`
	ExpiresAt int64  `json:"expires_at"`
	Nonce     string `json:"nonce"`
}

const (
	nonceKeyPrefix = "auth:nonce:"
	// maxClockAhead bounds expires_at so a signed envelope cannot be banked
	// for later replay against a long nonce TTL.
	maxClockAhead = 5 * time.Minute
)

// Verify returns a gin middleware that authenticates the request's wallet
// signature and stores the signer address under WalletKey.
func Verify(rdb *redis.Client, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		walletAddr := c.GetHeader("X-Wallet-Address")
		envelopeB64 := c.GetHeader("X-Signed-Message")
		sigHex := c.GetHeader("X-Wallet-Signature")
		if walletAddr == "" || envelopeB64 == "" || sigHex == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth headers"})
			return
		}

		msg, err := base64.StdEncoding.DecodeString(envelopeB64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid X-Signed-Message encoding"})
			return
		}
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signed message JSON"})
			return
		}

		now := time.Now().Unix()
		if env.ExpiresAt <= now {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "request expired"})
			return
		}
		if env.ExpiresAt > now+int64(maxClockAhead.Seconds()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "expires_at too far in future"})
			return
		}

		sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature hex"})
			return
		}
		signer, err := RecoverSigner(msg, sig)
		if err != nil || !strings.EqualFold(signer.Hex(), walletAddr) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		// Single use per nonce, enforced until the envelope itself expires.
		ttl := time.Duration(env.ExpiresAt-now) * time.Second
		fresh, err := rdb.SetNX(c.Request.Context(), nonceKeyPrefix+env.Nonce, 1, ttl).Result()
		if err != nil {
			log.Error("auth nonce check failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !fresh {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "nonce already used"})
			return
		}

		c.Set(WalletKey, signer.Hex())
		c.Next()
	}
}
