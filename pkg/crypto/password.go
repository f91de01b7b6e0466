package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/argon2"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
)

// Argon2Params mirrors the CryptoParameters.argon2_params wire fields
// (§6): negotiated during the handshake so both sides derive the same
// password key.
type Argon2Params struct {
	TimeCost    uint32
	MemoryCost  uint32
	Parallelism uint8
	Salt        []byte
}

// DefaultArgon2Params are the server-proposed defaults when a fresh salt is
// generated (first contact with a password-protected session).
func DefaultArgon2Params() (Argon2Params, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return Argon2Params{}, errs.Wrap(errs.KindCryptoInit, err, "generate argon2 salt")
	}
	return Argon2Params{
		TimeCost:    3,
		MemoryCost:  64 * 1024, // 64 MiB
		Parallelism: 1,
		Salt:        salt,
	}, nil
}

// DerivePasswordKey derives a 32-byte key from a password using Argon2id,
// used as the optional_pw_key folded into AuthResponse's HMAC (§4.5 step 7).
func DerivePasswordKey(password string, params Argon2Params) []byte {
	return argon2.IDKey([]byte(password), params.Salt, params.TimeCost, params.MemoryCost, params.Parallelism, 32)
}
