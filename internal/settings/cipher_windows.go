// SPDX-License-Identifier: MPL-2.0

//go:build windows

package settings

import (
	"encoding/base64"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// dpapiCipher protects the token with the Windows Data Protection API,
// scoped to the current user.
type dpapiCipher struct{}

// PlatformCipher returns the cipher used for globals.json on this platform.
func PlatformCipher() Cipher {
	return dpapiCipher{}
}

func (dpapiCipher) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	in := newBlob([]byte(plain))
	var out windows.DataBlob
	if err := windows.CryptProtectData(in, nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out); err != nil {
		return "", fmt.Errorf("CryptProtectData: %w", err)
	}
	defer freeBlob(&out)

	return base64.StdEncoding.EncodeToString(blobBytes(&out)), nil
}

func (dpapiCipher) Decrypt(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", err
	}
	in := newBlob(raw)
	var out windows.DataBlob
	if err := windows.CryptUnprotectData(in, nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out); err != nil {
		return "", fmt.Errorf("CryptUnprotectData: %w", err)
	}
	defer freeBlob(&out)

	return string(blobBytes(&out)), nil
}

func newBlob(b []byte) *windows.DataBlob {
	if len(b) == 0 {
		return &windows.DataBlob{}
	}
	return &windows.DataBlob{Size: uint32(len(b)), Data: &b[0]}
}

func blobBytes(b *windows.DataBlob) []byte {
	if b.Data == nil || b.Size == 0 {
		return nil
	}
	return append([]byte(nil), unsafe.Slice(b.Data, b.Size)...)
}

func freeBlob(b *windows.DataBlob) {
	if b.Data != nil {
		_, _ = windows.LocalFree(windows.Handle(unsafe.Pointer(b.Data)))
	}
}
