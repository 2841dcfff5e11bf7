package authn

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

func TestComputeMD5KnownVector(t *testing.T) {
	salt := [4]byte{0x01, 0x02, 0x03, 0x04}
	got := ComputeMD5("alice", "secret", salt)
	if !strings.HasPrefix(got, "md5") || len(got) != 35 {
		t.Fatalf("ComputeMD5 = %q, want md5-prefixed 32 hex chars", got)
	}
	if !VerifyMD5("alice", "secret", salt, got) {
		t.Fatal("VerifyMD5 rejected its own ComputeMD5 output")
	}
	if VerifyMD5("alice", "wrong", salt, got) {
		t.Fatal("VerifyMD5 accepted a response computed with a different password")
	}
}

func TestStaticVerifier(t *testing.T) {
	v := StaticVerifier{Username: "demo", Password: "demo"}
	if !v.Verify("demo", "demo") {
		t.Fatal("expected matching credentials to verify")
	}
	if v.Verify("demo", "wrong") {
		t.Fatal("expected mismatched password to fail")
	}
}

// TestScramFullExchangeSucceeds computes just enough of the client side of
// RFC 5802 inline to drive ScramServer through a full, successful exchange.
func TestScramFullExchangeSucceeds(t *testing.T) {
	const password = "s3cr3t"
	clientNonce := "fyko+d2lbbFgONRv9qkxdawL"
	clientFirstBare := "n=alice,r=" + clientNonce

	srv := NewScramServer(password)
	serverFirst, err := srv.ServerFirst("n,,"+clientFirstBare)
	if err != nil {
		t.Fatalf("ServerFirst() error = %v", err)
	}

	var salt []byte
	var combinedNonce string
	for _, part := range strings.Split(serverFirst, ",") {
		k, v, _ := strings.Cut(part, "=")
		switch k {
		case "r":
			combinedNonce = v
		case "s":
			salt, _ = base64.StdEncoding.DecodeString(v)
		}
	}

	clientFinalWithoutProof := "c=biws,r=" + combinedNonce
	authMessage := clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	saltedPassword := pbkdf2.Key([]byte(password), salt, scramIterations, sha256.Size, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSignature := hmacSHA256(storedKey[:], []byte(authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	clientFinal := fmt.Sprintf("%s,p=%s", clientFinalWithoutProof, base64.StdEncoding.EncodeToString(clientProof))

	serverFinal, err := srv.Verify(clientFinal)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))
	wantSig := hmacSHA256(serverKey, []byte(authMessage))
	wantServerFinal := "v=" + base64.StdEncoding.EncodeToString(wantSig)
	if serverFinal != wantServerFinal {
		t.Errorf("serverFinal = %q, want %q", serverFinal, wantServerFinal)
	}
}

func TestScramRejectsAlteredProofByte(t *testing.T) {
	const password = "s3cr3t"
	clientNonce := "fyko+d2lbbFgONRv9qkxdawL"
	clientFirstBare := "n=bob,r=" + clientNonce

	srv := NewScramServer(password)
	serverFirst, err := srv.ServerFirst("n,," + clientFirstBare)
	if err != nil {
		t.Fatalf("ServerFirst() error = %v", err)
	}

	var salt []byte
	var combinedNonce string
	for _, part := range strings.Split(serverFirst, ",") {
		k, v, _ := strings.Cut(part, "=")
		switch k {
		case "r":
			combinedNonce = v
		case "s":
			salt, _ = base64.StdEncoding.DecodeString(v)
		}
	}

	clientFinalWithoutProof := "c=biws,r=" + combinedNonce
	authMessage := clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	saltedPassword := pbkdf2.Key([]byte(password), salt, scramIterations, sha256.Size, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSignature := hmacSHA256(storedKey[:], []byte(authMessage))
	clientProof := xorBytes(clientKey, clientSignature)
	clientProof[0] ^= 0xFF // corrupt a single byte of the proof

	clientFinal := fmt.Sprintf("%s,p=%s", clientFinalWithoutProof, base64.StdEncoding.EncodeToString(clientProof))

	if _, err := srv.Verify(clientFinal); err == nil {
		t.Fatal("expected Verify to reject a corrupted client proof")
	}
}

func TestScramRejectsNonceMismatch(t *testing.T) {
	srv := NewScramServer("pw")
	if _, err := srv.ServerFirst("n,,n=u,r=abc"); err != nil {
		t.Fatalf("ServerFirst() error = %v", err)
	}
	if _, err := srv.Verify("c=biws,r=not-the-nonce,p=" + base64.StdEncoding.EncodeToString(make([]byte, sha256.Size))); err == nil {
		t.Fatal("expected nonce mismatch to be rejected")
	}
}
