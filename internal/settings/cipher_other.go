// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package settings

import "encoding/base64"

type base64Cipher struct{}

// PlatformCipher returns the cipher used for globals.json on this platform.
func PlatformCipher() Cipher {
	return base64Cipher{}
}

func (base64Cipher) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	return base64.StdEncoding.EncodeToString([]byte(plain)), nil
}

func (base64Cipher) Decrypt(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	b, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
