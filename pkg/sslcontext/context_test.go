package sslcontext

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testPKI struct {
	caFile   string
	certFile string
	keyFile  string
}

// writeTestPKI issues a CA and a client leaf into dir. A non-empty spiffeID
// becomes the leaf's URI SAN.
func writeTestPKI(t *testing.T, dir, spiffeID string) testPKI {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ca key: %v", err)
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create ca: %v", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parse ca: %v", err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate leaf key: %v", err)
	}
	leafTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "foo.example.net"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	if spiffeID != "" {
		u, err := url.Parse(spiffeID)
		if err != nil {
			t.Fatalf("parse spiffe id: %v", err)
		}
		leafTmpl.URIs = []*url.URL{u}
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, caCert, &leafKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create leaf: %v", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(leafKey)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	pki := testPKI{
		caFile:   filepath.Join(dir, "ca.pem"),
		certFile: filepath.Join(dir, "cert.pem"),
		keyFile:  filepath.Join(dir, "key.pem"),
	}
	writePEM(t, pki.caFile, "CERTIFICATE", caDER)
	writePEM(t, pki.certFile, "CERTIFICATE", leafDER)
	writePEM(t, pki.keyFile, "PRIVATE KEY", keyDER)
	return pki
}

func writePEM(t *testing.T, path, typ string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadPEM(t *testing.T) {
	pki := writeTestPKI(t, t.TempDir(), "")

	ctx, err := Load(Options{
		CertFile:     pki.certFile,
		KeyFile:      pki.keyFile,
		CAFile:       pki.caFile,
		CipherSuites: []string{"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ctx.Mode() != ModePEM {
		t.Fatalf("mode = %s", ctx.Mode())
	}

	cfg := ctx.TLSConfig()
	if cfg.InsecureSkipVerify {
		t.Fatalf("peer verification must not be skipped")
	}
	if cfg.RootCAs == nil {
		t.Fatalf("expected root CAs to be set")
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected one client certificate, got %d", len(cfg.Certificates))
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Fatalf("min version = %x", cfg.MinVersion)
	}
	if len(cfg.CipherSuites) != 1 || cfg.CipherSuites[0] != tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256 {
		t.Fatalf("cipher suites = %v", cfg.CipherSuites)
	}

	cfg.ServerName = "mutated"
	if ctx.TLSConfig().ServerName == "mutated" {
		t.Fatalf("TLSConfig must return a copy")
	}
}

func TestLoadPEMMissingFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(Options{Mode: ModePEM, CAFile: filepath.Join(dir, "missing.pem")}); err == nil {
		t.Fatalf("expected error for missing ca file")
	}

	pki := writeTestPKI(t, dir, "")
	if _, err := Load(Options{CAFile: pki.caFile}); err == nil {
		t.Fatalf("expected error when client cert is missing")
	}
}

func TestLoadRejectsUnknownCipherSuite(t *testing.T) {
	pki := writeTestPKI(t, t.TempDir(), "")
	_, err := Load(Options{
		CertFile:     pki.certFile,
		KeyFile:      pki.keyFile,
		CAFile:       pki.caFile,
		CipherSuites: []string{"TLS_RSA_WITH_RC4_128_SHA"},
	})
	if err == nil {
		t.Fatalf("expected error for insecure cipher suite")
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	if _, err := Load(Options{Mode: "psk"}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestLoadSPIFFE(t *testing.T) {
	pki := writeTestPKI(t, t.TempDir(), "spiffe://example.org/agent")

	ctx, err := Load(Options{
		Mode:        ModeSPIFFE,
		CertFile:    pki.certFile,
		KeyFile:     pki.keyFile,
		CAFile:      pki.caFile,
		TrustDomain: "example.org",
		ServerID:    "spiffe://example.org/puppetserver",
	})
	if err != nil {
		t.Fatalf("Load spiffe: %v", err)
	}
	cfg := ctx.TLSConfig()
	if cfg.VerifyPeerCertificate == nil {
		t.Fatalf("spiffe mode must install a peer verifier")
	}
	if cfg.GetClientCertificate == nil {
		t.Fatalf("spiffe mode must present the svid")
	}
}

func TestLoadSPIFFERejectsBadTrustDomain(t *testing.T) {
	pki := writeTestPKI(t, t.TempDir(), "spiffe://example.org/agent")
	_, err := Load(Options{
		Mode:        ModeSPIFFE,
		CertFile:    pki.certFile,
		KeyFile:     pki.keyFile,
		CAFile:      pki.caFile,
		TrustDomain: "Not A Domain/",
	})
	if err == nil {
		t.Fatalf("expected trust domain error")
	}
}

func TestFromTLSConfigRejectsInsecure(t *testing.T) {
	if _, err := FromTLSConfig(&tls.Config{InsecureSkipVerify: true}); err == nil { //nolint:gosec // asserting rejection
		t.Fatalf("expected insecure config to be rejected")
	}
	if _, err := FromTLSConfig(nil); err == nil {
		t.Fatalf("expected nil config to be rejected")
	}
	ctx, err := FromTLSConfig(&tls.Config{MinVersion: tls.VersionTLS13})
	if err != nil {
		t.Fatalf("FromTLSConfig: %v", err)
	}
	if ctx.TLSConfig().MinVersion != tls.VersionTLS13 {
		t.Fatalf("config not preserved")
	}
}
