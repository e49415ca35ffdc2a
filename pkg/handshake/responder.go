package handshake

import (
	"fmt"

	"github.com/b4ae/b4ae/pkg/crypto/classical"
	"github.com/b4ae/b4ae/pkg/crypto/keyschedule"
	"github.com/b4ae/b4ae/pkg/crypto/mldsa"
	"github.com/b4ae/b4ae/pkg/crypto/mlkem"
	"github.com/b4ae/b4ae/shared/protocol"
)

// ProcessInit verifies an inbound Init, learns the initiator's identity and
// ephemeral keys, and moves the responder to InitReceived.
//
// Version, suite and timestamp rejections never advance state; signature and
// identity failures park the context in Failed.
func (hs *Handshake) ProcessInit(data []byte) error {
	if hs.role != RoleResponder || hs.state != StateIdle {
		return fmt.Errorf("%w: ProcessInit in state %s", ErrInvalidState, hs.state)
	}
	if err := hs.checkDeadline(); err != nil {
		return err
	}

	msgType, body, err := protocol.DecodeEnvelope(data)
	if err != nil {
		return err
	}
	if msgType != protocol.MsgTypeInit {
		return fmt.Errorf("%w: expected INIT, got %s", protocol.ErrInvalidMessage, protocol.MessageTypeName(msgType))
	}

	msg, err := protocol.DecodeInit(body)
	if err != nil {
		return err
	}

	if msg.Version != protocol.ProtocolVersion {
		return fmt.Errorf("%w: got 0x%04x, expected 0x%04x",
			protocol.ErrUnsupportedVersion, msg.Version, protocol.ProtocolVersion)
	}
	if !protocol.KnownSuite(msg.CipherSuite) {
		return fmt.Errorf("%w: 0x%02x", protocol.ErrUnsupportedSuite, msg.CipherSuite)
	}
	if hs.config.RequireHybrid && msg.CipherSuite != protocol.SuiteHybrid {
		return fmt.Errorf("%w: profile requires the hybrid suite", protocol.ErrUnsupportedSuite)
	}
	if msg.CipherSuite == protocol.SuiteHybrid && len(msg.KEMPublicKey) != mlkem.PublicKeySize {
		return fmt.Errorf("%w: INIT: KEM public key must be %d bytes, got %d",
			protocol.ErrInvalidMessage, mlkem.PublicKeySize, len(msg.KEMPublicKey))
	}
	if len(msg.ECDHPublicKey) != classical.X25519PublicKeySize {
		return fmt.Errorf("%w: INIT: ECDH public key must be %d bytes, got %d",
			protocol.ErrInvalidMessage, classical.X25519PublicKeySize, len(msg.ECDHPublicKey))
	}

	if err := hs.validator.ValidateTimestamp(msg.Timestamp); err != nil {
		return err
	}

	if err := hs.checkPinnedIdentity(msg.SigPublicKey); err != nil {
		hs.fail()
		return err
	}

	if err := hs.verifyPeerSignature(msg.SigPublicKey, msg.SigningInput(), msg.Signature); err != nil {
		hs.fail()
		return err
	}

	hs.suite = msg.CipherSuite
	hs.peerSigPub = msg.SigPublicKey
	hs.peerECDHPub = msg.ECDHPublicKey
	hs.peerKEMPub = msg.KEMPublicKey

	hs.transcript.Write(body)
	hs.state = StateInitReceived
	return nil
}

// GenerateResponse encapsulates to the initiator's KEM key, runs the ECDH,
// signs the running transcript, and derives the master secret. Moves the
// responder to ResponseSent.
func (hs *Handshake) GenerateResponse() ([]byte, error) {
	if hs.role != RoleResponder || hs.state != StateInitReceived {
		return nil, fmt.Errorf("%w: GenerateResponse in state %s", ErrInvalidState, hs.state)
	}
	if err := hs.checkDeadline(); err != nil {
		return nil, err
	}

	msg := &protocol.Response{
		SigPublicKey:  hs.localSigPub,
		ECDHPublicKey: hs.ecdhKeys.PublicKey,
		Timestamp:     hs.config.now().Unix(),
	}

	if hs.suite == protocol.SuiteHybrid {
		ct, secret, err := mlkem.Encapsulate(hs.peerKEMPub)
		if err != nil {
			hs.fail()
			return nil, fmt.Errorf("%w: %v", ErrKemFailure, err)
		}
		msg.KEMCiphertext = ct
		hs.kemSecret = secret
	}

	ecdhSecret, err := classical.X25519Exchange(hs.ecdhKeys.PrivateKey, hs.peerECDHPub)
	if err != nil {
		hs.fail()
		return nil, fmt.Errorf("%w: %v", ErrKemFailure, err)
	}
	hs.ecdhSecret = ecdhSecret

	nonce, err := randomNonce()
	if err != nil {
		hs.fail()
		return nil, err
	}
	msg.Nonce = nonce

	// Sign the transcript as it stands after this message's fields, then
	// fold the signature in as well. The initiator mirrors this order.
	hs.transcript.Write(msg.PreSignatureBytes())
	signedTranscript := hs.transcript.Sum(nil)

	msg.Signature, err = mldsa.Sign(hs.localSigPriv, signedTranscript)
	if err != nil {
		hs.fail()
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	hs.transcript.Write(msg.Signature)

	if err := hs.deriveMaster(); err != nil {
		hs.fail()
		return nil, err
	}

	hs.state = StateResponseSent
	return protocol.EncodeEnvelope(protocol.MsgTypeResponse, msg.Encode()), nil
}

// ProcessComplete verifies the initiator's confirmation tag against the
// locally derived one and moves the responder to CompleteReceived. A repeat
// Complete on the same context is rejected with ErrInvalidState.
func (hs *Handshake) ProcessComplete(data []byte) error {
	if hs.role != RoleResponder || hs.state != StateResponseSent {
		return fmt.Errorf("%w: ProcessComplete in state %s", ErrInvalidState, hs.state)
	}
	if err := hs.checkDeadline(); err != nil {
		return err
	}

	msgType, body, err := protocol.DecodeEnvelope(data)
	if err != nil {
		return err
	}
	if msgType != protocol.MsgTypeComplete {
		return fmt.Errorf("%w: expected COMPLETE, got %s", protocol.ErrInvalidMessage, protocol.MessageTypeName(msgType))
	}

	msg, err := protocol.DecodeComplete(body)
	if err != nil {
		return err
	}

	expected, err := keyschedule.ConfirmationTag(hs.master)
	if err != nil {
		hs.fail()
		return err
	}

	if !confirmTagsEqual(expected, msg.ConfirmationTag[:]) {
		hs.fail()
		return ErrConfirmationMismatch
	}

	hs.state = StateCompleteReceived
	return nil
}
