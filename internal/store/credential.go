package store

import "context"

// CredentialDecryptor resolves the encrypted DSN column on a
// connections row into a usable connection string. The control plane
// never stores plaintext credentials, so every Engine Cache miss goes
// through a decryptor before dialing the target database.
//
// The reference implementation used here is a passthrough meant for
// environments where connection DSNs are provided unencrypted (local
// development, tests); production deployments supply their own
// implementation backed by a KMS or vault client.
type CredentialDecryptor interface {
	Decrypt(ctx context.Context, connectionID int64, encryptedDSN string) (string, error)
}

// PassthroughDecryptor returns the encrypted DSN unchanged. It exists
// so callers that have not wired a real KMS-backed decryptor still get
// a working CredentialDecryptor.
type PassthroughDecryptor struct{}

func (PassthroughDecryptor) Decrypt(_ context.Context, _ int64, encryptedDSN string) (string, error) {
	return encryptedDSN, nil
}
