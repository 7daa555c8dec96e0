// Package mcauth holds the legacy Mojang session-server digest shared by
// both sides of the login handshake: the upstream client's session.join
// call (§4.2) and the downstream listener's hasJoined verification (§4.6).
package mcauth

import (
	"crypto/sha1"
	"math/big"
)

// ServerHash computes SHA-1 of serverID || sharedSecret || publicKey,
// interpreted as a signed two's-complement big integer and formatted in
// lowercase hex (negative values get a leading "-"). This is the exact
// algorithm vanilla clients and servers use for the "server id" string
// passed to session.join / hasJoined.
func ServerHash(serverID string, sharedSecret, publicKey []byte) string {
	h := sha1.New()
	h.Write([]byte(serverID))
	h.Write(sharedSecret)
	h.Write(publicKey)
	digest := h.Sum(nil)

	n := new(big.Int).SetBytes(digest)
	if digest[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), 160))
		return "-" + new(big.Int).Neg(n).Text(16)
	}
	return n.Text(16)
}
