package service

import (
	"math/rand"
	"time"

	"github.com/devLink-Developer/chatbot-camping/config"
)

// ResponseDelay computes the humanized not-before offset for an outbound
// reply. Longer texts wait longer, scaled by the configured typing speed,
// clamped to the window, plus a random jitter so replies do not land on a
// metronome.
func ResponseDelay(cfg config.ResponseConfig, body string) time.Duration {
	chars := len([]rune(body))
	perChar := float64(chars) / float64(cfg.CharsPerSec) * 1000

	ms := int64(perChar)
	if ms < int64(cfg.MinDelayMS) {
		ms = int64(cfg.MinDelayMS)
	}
	if ms > int64(cfg.MaxDelayMS) {
		ms = int64(cfg.MaxDelayMS)
	}
	if cfg.JitterMS > 0 {
		ms += rand.Int63n(int64(cfg.JitterMS) + 1)
	}
	return time.Duration(ms) * time.Millisecond
}
