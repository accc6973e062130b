package domain

import "time"

// Wallet is a custodial wallet generated for a messaging-platform user. The
// private key is stored encrypted; the plaintext never leaves the wallet
// service.
type Wallet struct {
	UserID       int64
	Address      string
	EncryptedKey []byte // JSON blob produced by crypto.EncryptKey
	CreatedAt    time.Time
}
