package testutil

import (
	"moodlog-go/internal/encryption"
	"moodlog-go/internal/moodlog"
)

// NewTestEncryptor creates a new test encryptor for export tests.
func NewTestEncryptor() moodlog.Encryptor {
	return encryption.NewTestEncryptor()
}
