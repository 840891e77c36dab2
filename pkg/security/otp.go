// Package security generates delivery OTPs and stores them as Argon2id
// hashes in the PHC string format.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
)

const OTPLength = 6

var (
	otpPattern = regexp.MustCompile(`^[0-9]{6}$`)
	otpSpace   = big.NewInt(1_000_000)
	b64        = base64.RawStdEncoding
)

var ErrInvalidHash = errors.New("invalid argon2id hash")

func IsWellFormedOTP(code string) bool {
	return otpPattern.MatchString(code)
}

// GenerateOTP draws a uniformly random code, zero padded to OTPLength.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", OTPLength, n.Int64()), nil
}

// argonHash is one decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type argonHash struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (h argonHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads, b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

func (h argonHash) derive(code string) []byte {
	return argon2.IDKey([]byte(code), h.salt, h.time, h.memory, h.threads, uint32(len(h.key)))
}

func parseArgonHash(encoded string) (argonHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return argonHash{}, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argonHash{}, ErrInvalidHash
	}

	var h argonHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.time, &h.threads); err != nil {
		return argonHash{}, ErrInvalidHash
	}
	if h.memory == 0 || h.time == 0 || h.threads == 0 {
		return argonHash{}, ErrInvalidHash
	}

	var err error
	if h.salt, err = b64.DecodeString(parts[4]); err != nil || len(h.salt) == 0 {
		return argonHash{}, ErrInvalidHash
	}
	if h.key, err = b64.DecodeString(parts[5]); err != nil || len(h.key) == 0 {
		return argonHash{}, ErrInvalidHash
	}
	return h, nil
}

// HashOTP salts and hashes code with the configured cost, clamped to sane
// bounds so a bad env value cannot make every delivery attempt unbearably slow.
func HashOTP(code string, cfg config.OTPConfig) (string, error) {
	if !IsWellFormedOTP(code) {
		return "", fmt.Errorf("otp must be %d digits", OTPLength)
	}

	h := argonHash{
		memory:  clamp(cfg.ArgonMemoryKB, 8, 512*1024),
		time:    clamp(cfg.ArgonTime, 1, 10),
		threads: uint8(clamp(cfg.ArgonParallelism, 1, 255)),
		salt:    make([]byte, clamp(cfg.ArgonSaltLen, 8, 64)),
		key:     make([]byte, clamp(cfg.ArgonKeyLen, 16, 64)),
	}
	if _, err := rand.Read(h.salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	h.key = h.derive(code)
	return h.String(), nil
}

// VerifyOTP compares in constant time using the parameters stored in encoded.
func VerifyOTP(code, encoded string) (bool, error) {
	h, err := parseArgonHash(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(h.key, h.derive(code)) == 1, nil
}

func clamp(v, lo, hi int) uint32 {
	return uint32(min(max(v, lo), hi))
}

// OTPCodec binds the helpers to one hashing configuration.
type OTPCodec struct {
	cfg config.OTPConfig
}

func NewOTPCodec(cfg config.OTPConfig) OTPCodec {
	return OTPCodec{cfg: cfg}
}

func (c OTPCodec) Generate() (string, error) { return GenerateOTP() }

func (c OTPCodec) Hash(code string) (string, error) { return HashOTP(code, c.cfg) }

func (c OTPCodec) Verify(code, encoded string) (bool, error) { return VerifyOTP(code, encoded) }
