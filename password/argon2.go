package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

type argon2Params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

type argon2Hasher struct {
	variant Algorithm
	params  argon2Params
}

type parsedPHC struct {
	variant     Algorithm
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func newArgon2(variant Algorithm, params argon2Params) (*argon2Hasher, error) {
	if err := validateArgon2(params); err != nil {
		return nil, err
	}
	return &argon2Hasher{variant: variant, params: params}, nil
}

// hash processes raw string bytes exactly as provided (no Unicode normalization).
func (a *argon2Hasher) hash(password string) (string, error) {
	salt := make([]byte, a.params.saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := derive(a.variant, []byte(password), salt, a.params.time, a.params.memory, a.params.parallelism, a.params.keyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		a.variant,
		argon2.Version,
		a.params.memory,
		a.params.time,
		a.params.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (a *argon2Hasher) needsUpgrade(encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	if parsed.variant != a.variant {
		return true, nil
	}
	if a.params.memory > parsed.memory {
		return true, nil
	}
	if a.params.time > parsed.time {
		return true, nil
	}
	if a.params.parallelism > parsed.parallelism {
		return true, nil
	}
	if a.params.keyLength != uint32(len(parsed.hash)) {
		return true, nil
	}

	return false, nil
}

func verifyArgon2(password, encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := derive(
		parsed.variant,
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.hash)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

func derive(variant Algorithm, password, salt []byte, time, memory uint32, threads uint8, keyLen uint32) []byte {
	if variant == Argon2id {
		return argon2.IDKey(password, salt, time, memory, threads, keyLen)
	}
	return argon2.Key(password, salt, time, memory, threads, keyLen)
}

func parsePHC(encodedHash string) (*parsedPHC, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}

	variant := Algorithm(parts[1])
	if variant != Argon2i && variant != Argon2id {
		return nil, ErrUnsupportedAlgorithm
	}

	versionPart := parts[2]
	if !strings.HasPrefix(versionPart, "v=") {
		return nil, errors.New("missing argon2 version")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(versionPart, "v="))
	if err != nil {
		return nil, errors.New("invalid argon2 version")
	}
	if version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := decodeSegment(parts[4])
	if err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if len(salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt length")
	}

	hash, err := decodeSegment(parts[5])
	if err != nil {
		return nil, errors.New("invalid hash encoding")
	}
	if len(hash) == 0 {
		return nil, errors.New("invalid hash length")
	}

	return &parsedPHC{
		variant:     variant,
		memory:      params.memory,
		time:        params.time,
		parallelism: params.parallelism,
		salt:        salt,
		hash:        hash,
	}, nil
}

// decodeSegment accepts both unpadded (PHC) and padded base64.
func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

type parsedParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func parseParams(part string) (*parsedParams, error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return nil, errors.New("invalid parameter format")
	}

	var (
		memorySet, timeSet, parallelismSet bool
		params                             parsedParams
	)

	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid parameter entry")
		}

		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return nil, errors.New("invalid memory parameter")
			}
			params.memory = uint32(v)
			memorySet = true
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return nil, errors.New("invalid time parameter")
			}
			params.time = uint32(v)
			timeSet = true
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return nil, errors.New("invalid parallelism parameter")
			}
			params.parallelism = uint8(v)
			parallelismSet = true
		default:
			return nil, errors.New("unsupported parameter")
		}
	}

	if !memorySet || !timeSet || !parallelismSet {
		return nil, errors.New("missing parameters")
	}

	return &params, nil
}

func validateArgon2(p argon2Params) error {
	if p.memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if p.time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if p.parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if p.saltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if p.keyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}

	return nil
}
