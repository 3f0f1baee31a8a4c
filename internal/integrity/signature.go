package integrity

import (
	"fmt"
	"os"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/drmikehenry/romt/internal/romterror"
)

// SignaturePath returns the detached-signature sidecar path for path:
// "<path>.asc".
func SignaturePath(path string) string {
	return path + ".asc"
}

// VerifySignature verifies the detached, ASCII-armored signature at
// path.asc against path's contents, using key. It returns a MissingFile
// error if path or its signature cannot be read, and an Integrity error
// if the signature is malformed or does not match path.
func VerifySignature(path string, key *crypto.Key) error {
	sigPath := SignaturePath(path)
	sigData, err := os.ReadFile(sigPath)
	if err != nil {
		return romterror.MissingFile("%s: %v", sigPath, err)
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return romterror.MissingFile("%s: %v", path, err)
	}

	signature, err := crypto.NewPGPSignatureFromArmored(string(sigData))
	if err != nil {
		signature = crypto.NewPGPSignature(sigData)
	}

	keyRing, err := crypto.NewKeyRing(key)
	if err != nil {
		return romterror.IntegrityWrap(err, "failed to build keyring for %s", path)
	}

	message := crypto.NewPlainMessage(fileData)
	// verifyTime 0 accepts signatures at any time; upstream signing keys
	// rotate on a schedule we do not track.
	if err := keyRing.VerifyDetached(message, signature, 0); err != nil {
		return romterror.IntegrityWrap(err, "signature verification failed for %s", path)
	}
	return nil
}

// LoadArmoredKey parses an ASCII-armored PGP public key.
func LoadArmoredKey(armored string) (*crypto.Key, error) {
	key, err := crypto.NewKeyFromArmored(armored)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PGP key: %w", err)
	}
	return key, nil
}
