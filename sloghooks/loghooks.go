// Package sloghooks implements syncache.Hooks on top of log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/syncache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery    uint64
	MirrorErrorEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr    atomic.Uint64
	mirrorErrorCtr atomic.Uint64
}

var _ syncache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) RevalidateFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("syncache.revalidate_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) MirrorError(op, storageKey string, err error) {
	if h.l == nil || !sample(h.opts.MirrorErrorEvery, &h.mirrorErrorCtr) {
		return
	}
	h.l.Warn("syncache.mirror_error",
		"op", op,
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) MirrorPromoted(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("syncache.mirror_promoted", "key", h.redact(key))
}

func (h *Hooks) MirrorSelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("syncache.mirror_self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("syncache.provider_set_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) DedupTimeout(key string, waited time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Warn("syncache.dedup_timeout",
		"key", h.redact(key),
		"waited", waited)
}

func (h *Hooks) Swept(memory, durable int) {
	if h.l == nil {
		return
	}
	h.l.Info("syncache.swept",
		"memory", memory,
		"durable", durable)
}
