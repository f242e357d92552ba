package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// params are the argon2id cost settings baked into every new hash. Existing
// hashes verify with the parameters recorded in their own encoding, so these
// can be raised without invalidating stored credentials.
type params struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
	saltLen int
}

var defaultParams = params{
	memory:  64 * 1024,
	time:    3,
	threads: 2,
	keyLen:  32,
	saltLen: 16,
}

var errInvalidHash = errors.New("invalid password hash")

// Hash derives an argon2id hash of the plaintext and returns it in the
// standard encoded form with version, parameters, and salt embedded.
func Hash(plain string) (string, error) {
	salt := make([]byte, defaultParams.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	sum := argon2.IDKey([]byte(plain), salt, defaultParams.time, defaultParams.memory, defaultParams.threads, defaultParams.keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		defaultParams.memory,
		defaultParams.time,
		defaultParams.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify re-derives the hash from the plaintext using the parameters recorded
// in the encoded hash and compares in constant time.
func Verify(plain, encoded string) (bool, error) {
	p, salt, expected, err := decode(encoded)
	if err != nil {
		return false, err
	}
	actual := argon2.IDKey([]byte(plain), salt, p.time, p.memory, p.threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}

func decode(encoded string) (params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params{}, nil, nil, errInvalidHash
	}

	version, err := parsePrefixed(parts[2], "v=")
	if err != nil || int(version) != argon2.Version {
		return params{}, nil, nil, errInvalidHash
	}

	costs := strings.Split(parts[3], ",")
	if len(costs) != 3 {
		return params{}, nil, nil, errInvalidHash
	}
	mem, err := parsePrefixed(costs[0], "m=")
	if err != nil {
		return params{}, nil, nil, errInvalidHash
	}
	timeCost, err := parsePrefixed(costs[1], "t=")
	if err != nil {
		return params{}, nil, nil, errInvalidHash
	}
	threads, err := parsePrefixed(costs[2], "p=")
	if err != nil || threads > 255 {
		return params{}, nil, nil, errInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params{}, nil, nil, errInvalidHash
	}
	sum, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params{}, nil, nil, errInvalidHash
	}

	return params{memory: mem, time: timeCost, threads: uint8(threads)}, salt, sum, nil
}

func parsePrefixed(value, prefix string) (uint32, error) {
	if !strings.HasPrefix(value, prefix) {
		return 0, errInvalidHash
	}
	parsed, err := strconv.ParseUint(strings.TrimPrefix(value, prefix), 10, 32)
	if err != nil {
		return 0, errInvalidHash
	}
	return uint32(parsed), nil
}
