package vault

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := New("unit-test-secret")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cases := []string{
		"sk-abc123",
		"",
		"exactly sixteen!",
		strings.Repeat("long-credential-material/", 40),
		"非 ASCII 密钥内容 ©",
	}
	for _, plain := range cases {
		enc, err := v.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", plain, err)
		}
		if enc == plain && plain != "" {
			t.Errorf("Encrypt(%q) did not transform input", plain)
		}
		got, err := v.Decrypt(enc)
		if err != nil {
			t.Fatalf("Decrypt error = %v", err)
		}
		if got != plain {
			t.Errorf("round trip = %q, want %q", got, plain)
		}
	}
}

func TestEncryptProducesFreshIV(t *testing.T) {
	v, err := New("unit-test-secret")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a, err := v.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("Encrypt error = %v", err)
	}
	b, err := v.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("Encrypt error = %v", err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	v, err := New("unit-test-secret")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, bad := range []string{"", "not base64!!", "QQ==", "QUJDREVGR0g="} {
		if _, err := v.Decrypt(bad); err == nil {
			t.Errorf("Decrypt(%q) succeeded, want error", bad)
		}
	}
}

func TestDecryptWrongKey(t *testing.T) {
	v1, _ := New("secret-one")
	v2, _ := New("secret-two")

	enc, err := v1.Encrypt("credential")
	if err != nil {
		t.Fatalf("Encrypt error = %v", err)
	}
	if got, err := v2.Decrypt(enc); err == nil && got == "credential" {
		t.Error("decryption with the wrong key recovered the plaintext")
	}
}

func TestNewEmptySecret(t *testing.T) {
	if _, err := New(""); err != ErrEmptySecret {
		t.Errorf("New(\"\") error = %v, want ErrEmptySecret", err)
	}
}
