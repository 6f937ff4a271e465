package utils

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	digest, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(digest, "$argon2id$v=19$") {
		t.Fatalf("unexpected digest format: %s", digest)
	}

	ok, err := VerifyPassword("correct horse battery", digest)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("matching password should verify")
	}

	ok, err = VerifyPassword("wrong horse", digest)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Error("wrong password must not verify")
	}
}

func TestHashPasswordSaltsEachDigest(t *testing.T) {
	a, err := HashPassword("samepassword")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := HashPassword("samepassword")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a == b {
		t.Error("two digests of the same password should differ")
	}
}

func TestVerifyPasswordMalformedDigest(t *testing.T) {
	for _, digest := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=65536,t=3,p=2$onlyonepart",
		"$bcrypt$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$bogusparams$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$!!!$aGFzaA",
	} {
		if _, err := VerifyPassword("whatever", digest); !errors.Is(err, ErrMalformedDigest) {
			t.Errorf("digest %q: expected ErrMalformedDigest, got %v", digest, err)
		}
	}
}
