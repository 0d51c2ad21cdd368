package util

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// NewID returns an id made of the current time in base36 and a random
// suffix, so two ids minted in the same millisecond still differ.
func NewID(prefix string) string {
	bytes := make([]byte, 6)
	_, _ = rand.Read(bytes)
	id := strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + hex.EncodeToString(bytes)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
