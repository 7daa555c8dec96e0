package upstream

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

// rsaEncrypt encrypts data with the server's DER-encoded X.509
// SubjectPublicKeyInfo RSA key using PKCS#1 v1.5 padding, the scheme this
// protocol revision's login handshake requires for both the shared secret
// and the verify token (§4.2).
func rsaEncrypt(derPublicKey, data []byte) ([]byte, error) {
	pub, err := x509.ParsePKIXPublicKey(derPublicKey)
	if err != nil {
		return nil, fmt.Errorf("upstream: parse server public key: %w", err)
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("upstream: server public key is not RSA")
	}
	return rsa.EncryptPKCS1v15(rand.Reader, rsaKey, data)
}
