// Package authn implements the two password authentication flows the
// gateway speaks to clients (spec §4.3): legacy MD5 and SCRAM-SHA-256.
// Credential verification itself is delegated to a Verifier — the package
// never decides whether a username/password pair is valid, only whether the
// wire exchange proves the client knows it.
package authn

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
)

// Verifier checks a plaintext username/password pair against whatever
// identity source the gateway is configured with (spec §4.3: typically the
// historian backend's own login, or a static no-auth pair in development).
type Verifier interface {
	Verify(username, password string) bool
}

// StaticVerifier implements Verifier against a single fixed username/password
// pair, used for the --no-auth-username/--no-auth-password development mode.
type StaticVerifier struct {
	Username string
	Password string
}

// Verify reports whether the given credentials match the configured pair.
func (s StaticVerifier) Verify(username, password string) bool {
	return username == s.Username && password == s.Password
}

// NewMD5Salt generates the 4-byte salt sent in an AuthenticationMD5Password message.
func NewMD5Salt() ([4]byte, error) {
	var salt [4]byte
	_, err := rand.Read(salt[:])
	return salt, err
}

// ComputeMD5 implements PostgreSQL's MD5 challenge-response:
// "md5" + hex(md5(hex(md5(password||username)) || salt)).
func ComputeMD5(username, password string, salt [4]byte) string {
	inner := md5.Sum([]byte(password + username))
	innerHex := hex.EncodeToString(inner[:])
	outer := md5.Sum([]byte(innerHex + string(salt[:])))
	return "md5" + hex.EncodeToString(outer[:])
}

// VerifyMD5 checks a client's PasswordMessage response against the expected
// hash for the given salt and real credentials.
func VerifyMD5(username, password string, salt [4]byte, clientResponse string) bool {
	return clientResponse == ComputeMD5(username, password, salt)
}
