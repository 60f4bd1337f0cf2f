package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Request signature headers.
const (
	HeaderAddress   = "X-Address"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
	HeaderNonce     = "X-Nonce"
)

var ErrBadSignature = errors.New("crypto: signature does not match address")

// Signer holds a secp256k1 key and signs API requests with EIP-191
// personal-sign messages.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{privateKey: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// Address derived from the key.
func (s *Signer) Address() common.Address {
	return s.address
}

// RequestMessage is the text a caller signs for one request:
//
//	METHOD \n PATH \n TIMESTAMP \n NONCE \n hex(sha256(body))
func RequestMessage(method, path string, timestamp int64, nonce string, body []byte) string {
	sum := sha256.Sum256(body)
	return strings.Join([]string{
		strings.ToUpper(method),
		path,
		strconv.FormatInt(timestamp, 10),
		nonce,
		hex.EncodeToString(sum[:]),
	}, "\n")
}

// SignText personal-signs msg and returns the 0x-prefixed 65-byte signature
// with v in {27, 28}.
func (s *Signer) SignText(msg string) (string, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash([]byte(msg)), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// SignRequest sets the signature headers on req for body at time now. Each
// call signs a fresh random nonce, so two otherwise identical requests carry
// different signatures.
func (s *Signer) SignRequest(req *http.Request, body []byte, now time.Time) error {
	ts := now.Unix()
	nonce := uuid.NewString()
	sig, err := s.SignText(RequestMessage(req.Method, req.URL.Path, ts, nonce, body))
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAddress, s.address.Hex())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderSignature, sig)
	return nil
}

// RecoverText returns the address that personal-signed msg.
func RecoverText(msg, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: signature hex: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: signature is %d bytes, want 65", len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash([]byte(msg)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyText checks that claimed personal-signed msg.
func VerifyText(claimed common.Address, msg, sigHex string) error {
	got, err := RecoverText(msg, sigHex)
	if err != nil {
		return err
	}
	if got != claimed {
		return ErrBadSignature
	}
	return nil
}
