// Package identity manages long-term B4AE identities: the ML-DSA-87
// signature keypair that authenticates handshakes, plus the opaque peer ID
// it belongs to. Identities travel as length-prefixed, versioned blobs and
// can be stored passphrase-encrypted on disk.
package identity

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/b4ae/b4ae/pkg/crypto/mldsa"
	"github.com/b4ae/b4ae/pkg/crypto/zeroize"
)

// BlobVersion is the current export format version.
const BlobVersion byte = 0x01

var (
	// ErrInvalidBlob indicates a malformed or truncated identity blob
	ErrInvalidBlob = errors.New("identity: invalid blob")
	// ErrUnsupportedBlobVersion indicates a blob from an unknown format version
	ErrUnsupportedBlobVersion = errors.New("identity: unsupported blob version")
)

// PublicIdentity is a peer's long-term signature public key plus its opaque
// peer ID. Immutable for the lifetime of a session.
type PublicIdentity struct {
	PeerID       []byte
	SigPublicKey []byte // ML-DSA-87, 2592 bytes
}

// PrivateIdentity is a full local identity including the signing key.
// Owned by exactly one endpoint.
type PrivateIdentity struct {
	Public        PublicIdentity
	SigPrivateKey []byte // ML-DSA-87, 4864 bytes
}

// Generate creates a fresh identity for the given peer ID.
func Generate(peerID []byte) (*PrivateIdentity, error) {
	kp, err := mldsa.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	id := make([]byte, len(peerID))
	copy(id, peerID)

	return &PrivateIdentity{
		Public: PublicIdentity{
			PeerID:       id,
			SigPublicKey: kp.PublicKey,
		},
		SigPrivateKey: kp.PrivateKey,
	}, nil
}

// Zeroize wipes the private key material.
func (p *PrivateIdentity) Zeroize() {
	zeroize.Bytes(p.SigPrivateKey)
	p.SigPrivateKey = nil
}

// Export serializes the private identity as a versioned, length-prefixed
// blob: version(1) | peer_id | sig_public | sig_private, each field with a
// big-endian u16 length prefix.
func (p *PrivateIdentity) Export() []byte {
	buf := make([]byte, 0, 1+6+len(p.Public.PeerID)+len(p.Public.SigPublicKey)+len(p.SigPrivateKey))
	buf = append(buf, BlobVersion)
	buf = appendField(buf, p.Public.PeerID)
	buf = appendField(buf, p.Public.SigPublicKey)
	buf = appendField(buf, p.SigPrivateKey)
	return buf
}

// Import parses a blob produced by Export.
func Import(blob []byte) (*PrivateIdentity, error) {
	fields, err := parseBlob(blob, 3)
	if err != nil {
		return nil, err
	}

	if len(fields[1]) != mldsa.PublicKeySize {
		return nil, fmt.Errorf("%w: public key is %d bytes", ErrInvalidBlob, len(fields[1]))
	}
	if len(fields[2]) != mldsa.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key is %d bytes", ErrInvalidBlob, len(fields[2]))
	}

	return &PrivateIdentity{
		Public: PublicIdentity{
			PeerID:       fields[0],
			SigPublicKey: fields[1],
		},
		SigPrivateKey: fields[2],
	}, nil
}

// ExportPublic serializes just the public half: version(1) | peer_id | sig_public.
func (p *PublicIdentity) ExportPublic() []byte {
	buf := make([]byte, 0, 1+4+len(p.PeerID)+len(p.SigPublicKey))
	buf = append(buf, BlobVersion)
	buf = appendField(buf, p.PeerID)
	buf = appendField(buf, p.SigPublicKey)
	return buf
}

// ImportPublic parses a blob produced by ExportPublic.
func ImportPublic(blob []byte) (*PublicIdentity, error) {
	fields, err := parseBlob(blob, 2)
	if err != nil {
		return nil, err
	}

	if len(fields[1]) != mldsa.PublicKeySize {
		return nil, fmt.Errorf("%w: public key is %d bytes", ErrInvalidBlob, len(fields[1]))
	}

	return &PublicIdentity{
		PeerID:       fields[0],
		SigPublicKey: fields[1],
	}, nil
}

func appendField(buf, field []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(field)))
	return append(buf, field...)
}

func parseBlob(blob []byte, fieldCount int) ([][]byte, error) {
	if len(blob) < 1 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidBlob)
	}
	if blob[0] != BlobVersion {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedBlobVersion, blob[0])
	}

	fields := make([][]byte, 0, fieldCount)
	off := 1
	for i := 0; i < fieldCount; i++ {
		if off+2 > len(blob) {
			return nil, fmt.Errorf("%w: truncated at field %d", ErrInvalidBlob, i)
		}
		length := int(binary.BigEndian.Uint16(blob[off : off+2]))
		off += 2
		if off+length > len(blob) {
			return nil, fmt.Errorf("%w: field %d of %d bytes truncated", ErrInvalidBlob, i, length)
		}
		field := make([]byte, length)
		copy(field, blob[off:off+length])
		fields = append(fields, field)
		off += length
	}

	if off != len(blob) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidBlob, len(blob)-off)
	}

	return fields, nil
}
