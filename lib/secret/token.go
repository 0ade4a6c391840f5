// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

// sealedPrefix marks a token file whose body is a base64 age
// ciphertext rather than the token itself.
const sealedPrefix = "age:"

// ReadToken reads an access token from path. A file whose content
// starts with "age:" is decrypted with the x25519 identity read from
// identityPath; any other file is taken as the plain token. Leading
// and trailing whitespace is ignored. The caller must Close the
// returned buffer.
func ReadToken(path, identityPath string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secret: reading token file: %w", err)
	}
	defer Zero(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret: token file %s is empty", path)
	}
	if !bytes.HasPrefix(trimmed, []byte(sealedPrefix)) {
		return NewFromBytes(trimmed)
	}

	if identityPath == "" {
		return nil, fmt.Errorf("secret: token file %s is sealed but no identity file was given", path)
	}
	identityData, err := os.ReadFile(identityPath)
	if err != nil {
		return nil, fmt.Errorf("secret: reading identity file: %w", err)
	}
	identity, err := NewFromBytes(bytes.TrimSpace(identityData))
	Zero(identityData)
	if err != nil {
		return nil, err
	}
	defer identity.Close()

	return Unseal(string(trimmed[len(sealedPrefix):]), identity)
}

// SealToken encrypts token to the given age recipients (age1... keys)
// and returns the file content ReadToken expects.
func SealToken(token *Buffer, recipientKeys []string) (string, error) {
	if len(recipientKeys) == 0 {
		return "", fmt.Errorf("secret: at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("secret: parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return "", fmt.Errorf("secret: creating age encryptor: %w", err)
	}
	if _, err := writer.Write(token.Bytes()); err != nil {
		return "", fmt.Errorf("secret: writing token to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("secret: finalizing age encryption: %w", err)
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Unseal decrypts a base64 age ciphertext with the identity in
// privateKey (AGE-SECRET-KEY-1... form). privateKey is borrowed, not
// closed.
func Unseal(ciphertext string, privateKey *Buffer) (*Buffer, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("secret: parsing identity: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("secret: decoding base64 ciphertext: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return nil, fmt.Errorf("secret: decrypting token: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("secret: reading decrypted token: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("secret: sealed token is empty")
	}
	return NewFromBytes(plaintext)
}
