package toolregistry

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// CursorCodec implements the design note's "HMAC-wrapped (position, epoch)
// string" cursor: opaque to clients, tamper-resistant, and silently
// restarts at origin on any mismatch rather than erroring (no information
// leak about valid positions).
type CursorCodec struct {
	secret []byte
}

func NewCursorCodec(secret []byte) *CursorCodec {
	return &CursorCodec{secret: secret}
}

func (c *CursorCodec) Encode(position int, epoch uint64) string {
	payload := fmt.Sprintf("%d:%d", position, epoch)
	mac := c.sign(payload)
	raw := payload + ":" + mac
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode returns the position encoded in the cursor only if it verifies
// against the current epoch; any failure (bad encoding, bad MAC, stale
// epoch) yields position 0 with ok=false, which callers treat as "start
// over", never as an error.
func (c *CursorCodec) Decode(cursor string, currentEpoch uint64) (position int, ok bool) {
	if cursor == "" {
		return 0, true
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, false
	}
	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 {
		return 0, false
	}
	payload := parts[0] + ":" + parts[1]
	expectedMAC := c.sign(payload)
	if subtle.ConstantTimeCompare([]byte(expectedMAC), []byte(parts[2])) != 1 {
		return 0, false
	}
	pos, err := strconv.Atoi(parts[0])
	if err != nil || pos < 0 {
		return 0, false
	}
	epoch, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || epoch != currentEpoch {
		return 0, false
	}
	return pos, true
}

func (c *CursorCodec) sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
