package provision

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.mozilla.org/pkcs7"
	"howett.net/plist"
	gop12 "software.sslmate.com/src/go-pkcs12"
)

const (
	testUUID     = "351d20ea-a4c6-4e3d-ad00-1e275cbfead1"
	testName     = "Telekom Shop Offer Extension DEV"
	testAppID    = "Telekom Shop Offer Extension"
	testTeamName = "Deutsche Telekom AG"
	testTeamID   = "ABCDE12345"
)

// testNow is the reference instant for all expiration tests.
var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	signerOnce sync.Once
	signerCert *x509.Certificate
	signerKey  *rsa.PrivateKey
	signerErr  error
	serial     int64
	serialMu   sync.Mutex
)

func nextSerial() *big.Int {
	serialMu.Lock()
	defer serialMu.Unlock()
	serial++
	return big.NewInt(serial)
}

// testSigner returns the RSA identity used to sign profile envelopes.
func testSigner(t *testing.T) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	signerOnce.Do(func() {
		signerKey, signerErr = rsa.GenerateKey(rand.Reader, 2048)
		if signerErr != nil {
			return
		}
		tmpl := &x509.Certificate{
			SerialNumber: nextSerial(),
			Subject:      pkix.Name{CommonName: "Apple iPhone OS Provisioning Profile Signing"},
			NotBefore:    testNow.AddDate(-1, 0, 0),
			NotAfter:     testNow.AddDate(10, 0, 0),
			KeyUsage:     x509.KeyUsageDigitalSignature,
		}
		der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &signerKey.PublicKey, signerKey)
		if err != nil {
			signerErr = err
			return
		}
		signerCert, signerErr = x509.ParseCertificate(der)
	})
	if signerErr != nil {
		t.Fatalf("Failed to create signer: %v", signerErr)
	}
	return signerCert, signerKey
}

// newTestCertificate creates a self-signed developer certificate.
func newTestCertificate(t *testing.T, subject pkix.Name, notAfter time.Time) ([]byte, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject:      subject,
		NotBefore:    notAfter.AddDate(-1, 0, 0),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	return der, key
}

func developerSubject(cn string) pkix.Name {
	return pkix.Name{
		CommonName:         cn,
		OrganizationalUnit: []string{testTeamID},
		Organization:       []string{testTeamName},
		Country:            []string{"DE"},
	}
}

// testRecord returns a complete profile record expiring at expires.
func testRecord(expires time.Time, certs ...[]byte) map[string]interface{} {
	if certs == nil {
		certs = [][]byte{}
	}
	return map[string]interface{}{
		"UUID":                        testUUID,
		"Name":                        testName,
		"AppIDName":                   testAppID,
		"TeamName":                    testTeamName,
		"TeamIdentifier":              []string{testTeamID},
		"ApplicationIdentifierPrefix": []string{testTeamID},
		"Platform":                    []string{"iOS"},
		"Entitlements": map[string]interface{}{
			"application-identifier": testTeamID + ".com.example.*",
			"get-task-allow":         true,
		},
		"DeveloperCertificates": certs,
		"CreationDate":          expires.AddDate(-1, 0, 0).Truncate(time.Second),
		"ExpirationDate":        expires.Truncate(time.Second),
		"TimeToLive":            365,
		"Version":               1,
	}
}

// signRecord encodes record as an XML plist inside a CMS signed envelope.
func signRecord(t *testing.T, record interface{}) []byte {
	t.Helper()
	content, err := plist.Marshal(record, plist.XMLFormat)
	if err != nil {
		t.Fatalf("Failed to marshal record: %v", err)
	}
	return signContent(t, content)
}

func signContent(t *testing.T, content []byte) []byte {
	t.Helper()
	cert, key := testSigner(t)
	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		t.Fatalf("Failed to create signed data: %v", err)
	}
	if err := sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatalf("Failed to add signer: %v", err)
	}
	der, err := sd.Finish()
	if err != nil {
		t.Fatalf("Failed to finish signed data: %v", err)
	}
	return der
}

// writeP12 stores der and key as a PKCS#12 file in dir.
func writeP12(t *testing.T, dir, name string, der []byte, key *ecdsa.PrivateKey, password string) string {
	t.Helper()
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	data, err := gop12.Modern.Encode(key, cert, nil, password)
	if err != nil {
		t.Fatalf("Failed to encode P12: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("Failed to write P12: %v", err)
	}
	return path
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// machOWithEntitlements builds a thin arm64 Mach-O whose only load command is
// LC_CODE_SIGNATURE, pointing at a SuperBlob with one entitlements slot.
func machOWithEntitlements(entitlements []byte) []byte {
	const (
		headerSize   = 32
		linkeditSize = 16
		blobOffset   = headerSize + linkeditSize
	)

	var sig bytes.Buffer
	entLen := uint32(8 + len(entitlements))
	binary.Write(&sig, binary.BigEndian, []uint32{
		0xfade0cc0, 12 + 8 + entLen, 1, // SuperBlob: magic, length, count
		5, 20, // BlobIndex: CSSLOT_ENTITLEMENTS at offset 20
		0xfade7171, entLen, // entitlements blob header
	})
	sig.Write(entitlements)

	var bin bytes.Buffer
	binary.Write(&bin, binary.LittleEndian, []uint32{
		0xfeedfacf, 0x0100000c, 0, 2, // magic, arm64, subtype, MH_EXECUTE
		1, linkeditSize, 0, 0, // ncmds, sizeofcmds, flags, reserved
		0x1d, linkeditSize, blobOffset, uint32(sig.Len()), // LC_CODE_SIGNATURE
	})
	bin.Write(sig.Bytes())
	return bin.Bytes()
}

// writeSignedApp creates an .app bundle whose executable was signed with
// the given application identifier.
func writeSignedApp(t *testing.T, app, appID string, profile []byte) {
	t.Helper()
	info, err := plist.Marshal(map[string]interface{}{"CFBundleExecutable": "Shop"}, plist.XMLFormat)
	if err != nil {
		t.Fatalf("Failed to marshal Info.plist: %v", err)
	}
	entitlements, err := plist.Marshal(map[string]interface{}{
		"application-identifier": appID,
		"get-task-allow":         true,
	}, plist.XMLFormat)
	if err != nil {
		t.Fatalf("Failed to marshal entitlements: %v", err)
	}
	writeFile(t, filepath.Join(app, "Info.plist"), info)
	writeFile(t, filepath.Join(app, "Shop"), machOWithEntitlements(entitlements))
	if profile != nil {
		writeFile(t, filepath.Join(app, embeddedProfileName), profile)
	}
}
