package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Headers set on outbound deliveries.
const (
	HeaderSignature = "X-Paykit-Signature"
	HeaderTimestamp = "X-Paykit-Timestamp"
	HeaderDelivery  = "X-Paykit-Delivery"
)

// SignHex returns the hex HMAC-SHA256 of payload.
func SignHex(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHex checks a hex HMAC-SHA256 signature computed over the raw payload.
// Comparison is constant-time; letter case of the hex digest is ignored.
func VerifyHex(secret string, payload []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return errors.Join(ErrSignatureInvalid, err)
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	if !hmac.Equal(h.Sum(nil), got) {
		return ErrSignatureInvalid
	}
	return nil
}

// Sign binds payload to timestamp: HMAC-SHA256(secret, "<unix>.<payload>").
func Sign(secret string, payload []byte, timestamp time.Time) string {
	return SignHex(secret, timestampedPayload(timestamp.Unix(), payload))
}

// Verify checks the signature headers of a delivery produced by Sender.
// A non-positive tolerance disables the timestamp window check.
func Verify(secret string, payload []byte, header http.Header, tolerance time.Duration, now time.Time) error {
	sig := header.Get(HeaderSignature)
	rawTS := header.Get(HeaderTimestamp)
	if sig == "" || rawTS == "" {
		return ErrMissingSignature
	}
	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: timestamp %q", ErrSignatureInvalid, rawTS)
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: age %s", ErrSignatureExpired, age)
		}
	}
	return VerifyHex(secret, timestampedPayload(ts, payload), sig)
}

func timestampedPayload(ts int64, payload []byte) []byte {
	b := make([]byte, 0, len(payload)+21)
	b = strconv.AppendInt(b, ts, 10)
	b = append(b, '.')
	return append(b, payload...)
}
