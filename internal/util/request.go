package util

import (
	"net"
	"net/http"
	"os"
	"strings"
)

// GetEnv returns the environment variable value or a default.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ClientIP extracts the originating client address, preferring the first
// entry of X-Forwarded-For when a proxy set it.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// MaskPhone keeps the first five and last two characters of an E.164 number.
// "+201033832316" becomes "+2010****16".
func MaskPhone(phone string) string {
	if len(phone) < 8 {
		return "****"
	}
	return phone[:5] + "****" + phone[len(phone)-2:]
}

// MaskNationalID keeps only the first five digits of a 14-digit national ID.
func MaskNationalID(nationalID string) string {
	if len(nationalID) < 5 {
		return "**************"
	}
	return nationalID[:5] + strings.Repeat("*", len(nationalID)-5)
}
