// Package keys holds the ed25519 signing primitives and the custodial
// keyring the node uses for accounts that do not sign their own transfers.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const WalletAddressPrefix = "casha:"

var ErrBadSignature = errors.New("invalid transaction signature")

// Intent is the part of a transfer the sender signs. References and
// timestamps are chosen by the node and are not covered.
type Intent struct {
	FromUser string
	ToUser   string
	Amount   string
	Note     string
	Nonce    string
}

func writeField(b *strings.Builder, v string) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(v)))
	b.Write(l[:])
	b.WriteString(v)
}

// SigningBytes is the length-prefixed canonical encoding of an intent.
func SigningBytes(in Intent) []byte {
	b := strings.Builder{}
	b.WriteString("casha/transfer/v1")
	writeField(&b, in.FromUser)
	writeField(&b, in.ToUser)
	writeField(&b, in.Amount)
	writeField(&b, in.Note)
	writeField(&b, in.Nonce)
	return []byte(b.String())
}

func GenerateKey(r io.Reader) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if r == nil {
		r = rand.Reader
	}
	pub, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed generating ed25519 key")
	}
	return pub, priv, nil
}

// Sign returns the hex signature of the intent.
func Sign(in Intent, priv ed25519.PrivateKey) string {
	return hex.EncodeToString(ed25519.Sign(priv, SigningBytes(in)))
}

// Verify checks a hex signature against a hex encoded public key.
func Verify(in Intent, publicKeyHex, signatureHex string) error {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return errors.Wrap(ErrBadSignature, "malformed public key")
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return errors.Wrap(ErrBadSignature, "malformed signature")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), SigningBytes(in), sig) {
		return ErrBadSignature
	}
	return nil
}

// WalletAddress derives the display address from a public key.
func WalletAddress(pub ed25519.PublicKey) string {
	h, _ := blake2b.New(20, nil) // only errors on bad size/key
	h.Write(pub)
	return WalletAddressPrefix + hex.EncodeToString(h.Sum(nil))
}

// TransactionFields is everything hashed into a transaction id.
type TransactionFields struct {
	Kind       string
	FromUser   string
	ToUser     string
	Amount     string
	Fee        string
	Note       string
	Nonce      string
	References []string
	Timestamp  time.Time
}

// TransactionID is the hex blake2b-256 of the canonical transaction fields.
// References are hashed in sorted order so selection order does not matter.
func TransactionID(f TransactionFields) string {
	b := strings.Builder{}
	b.WriteString("casha/tx/v1")
	writeField(&b, f.Kind)
	writeField(&b, f.FromUser)
	writeField(&b, f.ToUser)
	writeField(&b, f.Amount)
	writeField(&b, f.Fee)
	writeField(&b, f.Note)
	writeField(&b, f.Nonce)
	refs := append([]string(nil), f.References...)
	sort.Strings(refs)
	for _, r := range refs {
		writeField(&b, r)
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(f.Timestamp.UnixNano()))
	b.Write(ts[:])
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
