package handshake

import (
	"fmt"

	"github.com/b4ae/b4ae/pkg/crypto/aead"
	"github.com/b4ae/b4ae/pkg/crypto/classical"
	"github.com/b4ae/b4ae/pkg/crypto/keyschedule"
	"github.com/b4ae/b4ae/pkg/crypto/mldsa"
	"github.com/b4ae/b4ae/pkg/crypto/mlkem"
	"github.com/b4ae/b4ae/shared/protocol"
)

// GenerateInit builds the Init message, starts the transcript, and moves the
// initiator to InitSent. Returns the enveloped wire bytes.
func (hs *Handshake) GenerateInit() ([]byte, error) {
	if hs.role != RoleInitiator || hs.state != StateIdle {
		return nil, fmt.Errorf("%w: GenerateInit in state %s", ErrInvalidState, hs.state)
	}
	if err := hs.checkDeadline(); err != nil {
		return nil, err
	}

	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}

	msg := &protocol.Init{
		Version:       protocol.ProtocolVersion,
		CipherSuite:   hs.suite,
		SigPublicKey:  hs.localSigPub,
		ECDHPublicKey: hs.ecdhKeys.PublicKey,
		Nonce:         nonce,
		Timestamp:     hs.config.now().Unix(),
	}
	if hs.suite == protocol.SuiteHybrid {
		msg.KEMPublicKey = hs.kemKeys.PublicKey
	}

	msg.Signature, err = mldsa.Sign(hs.localSigPriv, msg.SigningInput())
	if err != nil {
		hs.fail()
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	body := msg.Encode()
	hs.transcript.Write(body)
	hs.state = StateInitSent

	return protocol.EncodeEnvelope(protocol.MsgTypeInit, body), nil
}

// ProcessResponse verifies the responder's Response, decapsulates the KEM
// ciphertext, runs the ECDH, and derives the master secret. Moves the
// initiator to ResponseReceived.
//
// Version, timestamp and wrong-type rejections leave the state untouched;
// signature, identity and KEM failures park the context in Failed.
func (hs *Handshake) ProcessResponse(data []byte) error {
	if hs.role != RoleInitiator || hs.state != StateInitSent {
		return fmt.Errorf("%w: ProcessResponse in state %s", ErrInvalidState, hs.state)
	}
	if err := hs.checkDeadline(); err != nil {
		return err
	}

	msgType, body, err := protocol.DecodeEnvelope(data)
	if err != nil {
		return err
	}
	if msgType != protocol.MsgTypeResponse {
		return fmt.Errorf("%w: expected RESPONSE, got %s", protocol.ErrInvalidMessage, protocol.MessageTypeName(msgType))
	}

	msg, err := protocol.DecodeResponse(body)
	if err != nil {
		return err
	}

	if err := hs.validator.ValidateTimestamp(msg.Timestamp); err != nil {
		return err
	}

	if err := hs.checkPinnedIdentity(msg.SigPublicKey); err != nil {
		hs.fail()
		return err
	}

	// The responder signed the transcript up to and including its
	// pre-signature fields; mirror that exactly.
	hs.transcript.Write(msg.PreSignatureBytes())
	signedTranscript := hs.transcript.Sum(nil)

	if err := hs.verifyPeerSignature(msg.SigPublicKey, signedTranscript, msg.Signature); err != nil {
		hs.fail()
		return err
	}
	hs.transcript.Write(msg.Signature)

	if hs.suite == protocol.SuiteHybrid {
		secret, err := mlkem.Decapsulate(hs.kemKeys.PrivateKey, msg.KEMCiphertext)
		if err != nil {
			hs.fail()
			return fmt.Errorf("%w: %v", ErrKemFailure, err)
		}
		hs.kemSecret = secret
	}

	ecdhSecret, err := classical.X25519Exchange(hs.ecdhKeys.PrivateKey, msg.ECDHPublicKey)
	if err != nil {
		hs.fail()
		return fmt.Errorf("%w: %v", ErrKemFailure, err)
	}
	hs.ecdhSecret = ecdhSecret
	hs.peerSigPub = msg.SigPublicKey

	if err := hs.deriveMaster(); err != nil {
		hs.fail()
		return err
	}

	hs.state = StateResponseReceived
	return nil
}

// GenerateComplete emits the confirmation tag and moves the initiator to
// CompleteSent.
func (hs *Handshake) GenerateComplete() ([]byte, error) {
	if hs.role != RoleInitiator || hs.state != StateResponseReceived {
		return nil, fmt.Errorf("%w: GenerateComplete in state %s", ErrInvalidState, hs.state)
	}
	if err := hs.checkDeadline(); err != nil {
		return nil, err
	}

	tag, err := keyschedule.ConfirmationTag(hs.master)
	if err != nil {
		hs.fail()
		return nil, err
	}

	msg := &protocol.Complete{}
	copy(msg.ConfirmationTag[:], tag)

	hs.state = StateCompleteSent
	return protocol.EncodeEnvelope(protocol.MsgTypeComplete, msg.Encode()), nil
}

// Finalize exposes the session keys and destroys the context. It accepts an
// initiator in CompleteSent or a responder in CompleteReceived.
func (hs *Handshake) Finalize() (*Result, error) {
	switch {
	case hs.role == RoleInitiator && hs.state == StateCompleteSent:
	case hs.role == RoleResponder && hs.state == StateCompleteReceived:
	default:
		return nil, fmt.Errorf("%w: Finalize as %s in state %s", ErrInvalidState, hs.role, hs.state)
	}
	if err := hs.checkDeadline(); err != nil {
		return nil, err
	}

	return hs.finalize()
}

// verifySig verifies an ML-DSA-87 signature. Constant-time inside circl;
// malformed input verifies false.
func verifySig(pub, msg, sig []byte) bool {
	return mldsa.Verify(pub, msg, sig)
}

// confirmTagsEqual compares confirmation tags in constant time.
func confirmTagsEqual(a, b []byte) bool {
	return aead.ConstantTimeEqual(a, b)
}
