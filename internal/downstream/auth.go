package downstream

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/janispritzkau/2b2proxy/internal/mcauth"
)

// keyPair is generated once per listener and reused across every login
// handshake, exactly as a Notchian server keeps one RSA keypair for its
// whole lifetime.
type keyPair struct {
	priv *rsa.PrivateKey
	der  []byte
}

func newKeyPair() (*keyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &keyPair{priv: priv, der: der}, nil
}

func (k *keyPair) decrypt(ciphertext []byte) ([]byte, error) {
	return rsa.DecryptPKCS1v15(rand.Reader, k.priv, ciphertext)
}

type hasJoinedResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// verifyHasJoined performs the server-side half of the online-mode
// handshake (§4.6, §6): confirms with the remote session server that
// username really negotiated sharedSecret/publicKey, returning the
// authenticated account's uuid.
func verifyHasJoined(authServer, username string, sharedSecret, publicKeyDER []byte) (uuid.UUID, error) {
	serverID := mcauth.ServerHash("", sharedSecret, publicKeyDER)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	uri := fmt.Sprintf("%s/session/minecraft/hasJoined?username=%s&serverId=%s", authServer, username, serverID)
	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := fasthttp.DoTimeout(req, resp, 10*time.Second); err != nil {
		return uuid.Nil, fmt.Errorf("downstream: hasJoined request failed: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return uuid.Nil, fmt.Errorf("downstream: hasJoined rejected %q", username)
	}

	var hj hasJoinedResponse
	if err := json.Unmarshal(resp.Body(), &hj); err != nil {
		return uuid.Nil, fmt.Errorf("downstream: decode hasJoined response: %w", err)
	}
	return uuid.Parse(insertUUIDHyphens(hj.ID))
}

// insertUUIDHyphens converts a 32-hex-digit uuid (as Mojang's session
// server returns it) into the hyphenated form uuid.Parse expects.
func insertUUIDHyphens(s string) string {
	if len(s) != 32 {
		return s
	}
	return s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:32]
}
