package secrets

import "testing"

func TestNewManager(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{"valid 32-byte key", make([]byte, 32), false},
		{"short key", make([]byte, 16), true},
		{"long key", make([]byte, 64), true},
		{"empty key", []byte{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewManager() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && m == nil {
				t.Fatal("NewManager() returned nil without error")
			}
		})
	}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	m, err := NewManagerFromPassphrase("test-passphrase")
	if err != nil {
		t.Fatalf("NewManagerFromPassphrase() error = %v", err)
	}

	cases := []string{
		"hunter2",
		"smtp-app-password-with-special-chars-!@#$%",
		"a-gotify-token-1234567890",
	}

	for _, plaintext := range cases {
		enc, err := m.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", plaintext, err)
		}
		if !IsEncrypted(enc) {
			t.Fatalf("Encrypt(%q) = %q, missing enc: prefix", plaintext, enc)
		}
		if enc == plaintext {
			t.Fatalf("Encrypt(%q) returned plaintext unchanged", plaintext)
		}

		got, err := m.Decrypt(enc)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if got != plaintext {
			t.Fatalf("Decrypt() = %q, want %q", got, plaintext)
		}
	}
}

func TestDecryptPassesThroughPlaintext(t *testing.T) {
	m, _ := NewManagerFromPassphrase("test-passphrase")

	got, err := m.Decrypt("plain-value-not-encrypted")
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if got != "plain-value-not-encrypted" {
		t.Fatalf("Decrypt() = %q, want passthrough", got)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	m1, _ := NewManagerFromPassphrase("key-one")
	m2, _ := NewManagerFromPassphrase("key-two")

	enc, err := m1.Encrypt("secret-value")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := m2.Decrypt(enc); err == nil {
		t.Fatal("Decrypt() with wrong key should fail")
	}
}

func TestEncryptEmptyValue(t *testing.T) {
	m, _ := NewManagerFromPassphrase("test-passphrase")
	if _, err := m.Encrypt(""); err == nil {
		t.Fatal("Encrypt(\"\") should fail")
	}
}
