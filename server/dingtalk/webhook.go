package dingtalk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// maxSignatureSkew is the widest accepted gap between the signed timestamp
// and our clock.
const maxSignatureSkew = time.Hour

// InboundMessage is the subset of the DingTalk outgoing-webhook payload the
// bot consumes.
type InboundMessage struct {
	MsgID            string `json:"msgId"`
	ConversationType string `json:"conversationType"` // "1" = direct chat
	SenderStaffID    string `json:"senderStaffId"`
	SenderNick       string `json:"senderNick"`
	Text             struct {
		Content string `json:"content"`
	} `json:"text"`
}

// Handler turns an inbound user message into a reply. An empty reply sends
// nothing.
type Handler func(c echo.Context, userID, text string) string

// Sign computes the DingTalk webhook signature for a millisecond timestamp.
func Sign(secret string, timestampMs int64) string {
	payload := strconv.FormatInt(timestampMs, 10) + "\n" + secret
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the timestamp/sign header pair of an inbound
// request.
func VerifySignature(secret, timestamp, sign string, now time.Time) bool {
	ms, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	at := time.UnixMilli(ms)
	if at.Before(now.Add(-maxSignatureSkew)) || at.After(now.Add(maxSignatureSkew)) {
		return false
	}
	expected := Sign(secret, ms)
	return hmac.Equal([]byte(expected), []byte(sign))
}

// RegisterWebhook mounts the outgoing-webhook endpoint on e.
func RegisterWebhook(e *echo.Echo, appSecret string, handler Handler) {
	e.POST("/webhook/dingtalk", func(c echo.Context) error {
		timestamp := c.Request().Header.Get("timestamp")
		sign := c.Request().Header.Get("sign")
		if !VerifySignature(appSecret, timestamp, sign, time.Now()) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"errmsg": "invalid signature"})
		}

		var msg InboundMessage
		if err := c.Bind(&msg); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"errmsg": "malformed payload"})
		}

		reply := handler(c, msg.SenderStaffID, msg.Text.Content)
		if reply == "" {
			return c.JSON(http.StatusOK, map[string]any{})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"msgtype": "text",
			"text":    map[string]string{"content": reply},
		})
	})
}
