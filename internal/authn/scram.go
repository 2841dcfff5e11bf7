package authn

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// scramIterations is the PBKDF2 iteration count advertised in the
// server-first message; 4096 matches the value the historian backend and
// most PostgreSQL servers use.
const scramIterations = 4096

// ScramServer drives one SCRAM-SHA-256 SASL exchange for a single
// connection. It is not safe for concurrent use; a connection has exactly
// one authentication exchange in flight at a time.
type ScramServer struct {
	password string

	clientNonce string
	serverNonce string
	salt        []byte

	clientFirstBare string
	serverFirst     string

	storedKey []byte
	serverKey []byte
}

// NewScramServer begins an exchange that will verify against password. The
// caller (connfsm) is responsible for having already resolved which
// plaintext password the authenticated username should have, via a
// Verifier-equivalent lookup upstream (spec §4.3: SCRAM needs the plaintext
// password to derive the same keys the client derives).
func NewScramServer(password string) *ScramServer {
	return &ScramServer{password: password}
}

// ServerFirst parses the client's "n,,n=<user>,r=<nonce>" first message and
// returns the server-first response containing the combined nonce, salt and
// iteration count.
func (s *ScramServer) ServerFirst(clientFirstMessage string) (string, error) {
	bare := strings.TrimPrefix(clientFirstMessage, "n,,")
	s.clientFirstBare = bare

	var clientNonce string
	for _, part := range strings.Split(bare, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if k == "r" {
			clientNonce = v
		}
	}
	if clientNonce == "" {
		return "", errors.New("scram: missing client nonce in client-first message")
	}
	s.clientNonce = clientNonce

	nonce := make([]byte, 18)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("scram: generating server nonce: %w", err)
	}
	s.serverNonce = base64.RawStdEncoding.EncodeToString(nonce)

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("scram: generating salt: %w", err)
	}
	s.salt = salt

	combinedNonce := clientNonce + s.serverNonce
	s.serverFirst = fmt.Sprintf("r=%s,s=%s,i=%d", combinedNonce, base64.StdEncoding.EncodeToString(salt), scramIterations)
	return s.serverFirst, nil
}

// Verify checks the client's final message and, if the proof is valid,
// returns the server-final message ("v=<signature>") to send back.
func (s *ScramServer) Verify(clientFinalMessage string) (string, error) {
	channelBinding, nonce, proofB64, err := parseClientFinal(clientFinalMessage)
	if err != nil {
		return "", err
	}
	if channelBinding != "biws" { // base64("n,,")
		return "", errors.New("scram: unsupported channel binding")
	}
	wantNonce := s.clientNonce + s.serverNonce
	if nonce != wantNonce {
		return "", errors.New("scram: nonce mismatch")
	}

	saltedPassword := pbkdf2.Key([]byte(s.password), s.salt, scramIterations, sha256.Size, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	s.storedKey = storedKey[:]
	s.serverKey = hmacSHA256(saltedPassword, []byte("Server Key"))

	clientFinalWithoutProof := fmt.Sprintf("c=%s,r=%s", channelBinding, nonce)
	authMessage := s.clientFirstBare + "," + s.serverFirst + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(s.storedKey, []byte(authMessage))
	clientProof, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		return "", fmt.Errorf("scram: decoding client proof: %w", err)
	}
	if len(clientProof) != len(clientSignature) {
		return "", errors.New("scram: malformed client proof")
	}
	recoveredClientKey := xorBytes(clientProof, clientSignature)
	recoveredStoredKey := sha256.Sum256(recoveredClientKey)
	if !hmac.Equal(recoveredStoredKey[:], s.storedKey) {
		return "", errors.New("scram: authentication failed")
	}

	serverSignature := hmacSHA256(s.serverKey, []byte(authMessage))
	return "v=" + base64.StdEncoding.EncodeToString(serverSignature), nil
}

func parseClientFinal(msg string) (channelBinding, nonce, proof string, err error) {
	for _, part := range strings.Split(msg, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch k {
		case "c":
			channelBinding = v
		case "r":
			nonce = v
		case "p":
			proof = v
		}
	}
	if channelBinding == "" || nonce == "" || proof == "" {
		return "", "", "", errors.New("scram: malformed client-final message")
	}
	return channelBinding, nonce, proof, nil
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
