package config

import (
	"os"
	"strings"
	"time"
)

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// InventoryReservationsEnabled makes assembly start hold its materials until complete or cancel.
//
// Set via env:
// - INVENTORY_RESERVATIONS=false (default on)
func InventoryReservationsEnabled() bool {
	return boolFromEnv("INVENTORY_RESERVATIONS", true)
}

// AuditSinkKind selects the audit delivery target: "pubsub", "kafka" or "log" (default).
func AuditSinkKind() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("AUDIT_SINK")))
	switch v {
	case "pubsub", "kafka":
		return v
	default:
		return "log"
	}
}

// OnlineAttentionThresholds returns how long an online order may sit in Pending, Accepted and Shipped
// before it is reported as needing attention.
//
// Set via env (hours):
// - ONLINE_PENDING_ATTENTION_HOURS (default 2)
// - ONLINE_ACCEPTED_ATTENTION_HOURS (default 24)
// - ONLINE_SHIPPED_ATTENTION_HOURS (default 168)
func OnlineAttentionThresholds() (pending, accepted, shipped time.Duration) {
	pending = time.Duration(IntFromEnv("ONLINE_PENDING_ATTENTION_HOURS", 2)) * time.Hour
	accepted = time.Duration(IntFromEnv("ONLINE_ACCEPTED_ATTENTION_HOURS", 24)) * time.Hour
	shipped = time.Duration(IntFromEnv("ONLINE_SHIPPED_ATTENTION_HOURS", 168)) * time.Hour
	return
}

func IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")
}
