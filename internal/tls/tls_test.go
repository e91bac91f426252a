package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func TestSetupDisabled(t *testing.T) {
	cfg, err := Setup(Config{})
	if err != nil || cfg != nil {
		t.Fatalf("disabled TLS should return nil, nil; got %v %v", cfg, err)
	}
}

func TestSetupAutoGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	cfg, err := Setup(Config{Enabled: true, Dir: dir, AutoGenerate: true, MinVersion: "1.2"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Fatalf("min version = %x", cfg.MinVersion)
	}
	cert, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil || cert == nil {
		t.Fatalf("get certificate: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, tlsCrt))
	if err != nil {
		t.Fatalf("read cert: %v", err)
	}
	block, _ := pem.Decode(b)
	x, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}
	if len(x.DNSNames) != 1 || x.DNSNames[0] != "localhost" || len(x.IPAddresses) != 1 {
		t.Fatalf("unexpected SANs: %v %v", x.DNSNames, x.IPAddresses)
	}

	fi, err := os.Stat(filepath.Join(dir, tlsKey))
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("key permissions = %v", fi.Mode().Perm())
	}

	// an existing pair is reused, not regenerated
	if _, err := Setup(Config{Enabled: true, Dir: dir, AutoGenerate: true}); err != nil {
		t.Fatalf("second setup: %v", err)
	}
	again, _ := os.ReadFile(filepath.Join(dir, tlsCrt))
	if string(again) != string(b) {
		t.Fatalf("certificate was regenerated")
	}
}

func TestSetupErrors(t *testing.T) {
	if _, err := Setup(Config{Enabled: true}); err == nil {
		t.Fatalf("expected error without certificate source")
	}
	if _, err := Setup(Config{Enabled: true, Dir: t.TempDir()}); err == nil {
		t.Fatalf("expected error for missing files without auto_generate")
	}
	if _, err := Setup(Config{Enabled: true, Dir: t.TempDir(), AutoGenerate: true, MinVersion: "1.0"}); err == nil {
		t.Fatalf("expected error for unsupported version")
	}
}
