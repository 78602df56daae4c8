package crypto

import (
	"testing"
)

type signedTestPayload struct {
	Batch uint64 `json:"batch"`
	Note  string `json:"note"`
}

func FuzzSignedEnvelope(f *testing.F) {
	f.Add(uint64(0), "")
	f.Add(uint64(1), "close batch")
	f.Add(uint64(1<<63), "a longer operation note with spaces and punctuation: !?")

	f.Fuzz(func(t *testing.T, batch uint64, note string) {
		pubKey, privKey, err := GenerateKeyPair()
		if err != nil {
			t.Fatalf("failed to generate key pair: %v", err)
		}

		payload := &signedTestPayload{Batch: batch, Note: note}
		signed, err := NewSigned(privKey, payload)
		if err != nil {
			t.Fatalf("signing failed: %v", err)
		}

		// Invariant 1: Recover returns the payload and the signer identity
		obj, signer, err := signed.Recover()
		if err != nil {
			t.Fatalf("recover failed: %v", err)
		}
		if obj.Batch != batch || obj.Note != note {
			t.Errorf("recovered payload mismatch: got %+v", obj)
		}
		if !signer.Equal(pubKey) {
			t.Errorf("recovered signer mismatch: got %s, want %s", signer, pubKey)
		}

		// Invariant 2: The envelope survives a JSON wire round-trip
		wire, err := SerializeMessage(signed)
		if err != nil {
			t.Fatalf("serialize failed: %v", err)
		}
		decoded, err := UnmarshalMessage[Signed[signedTestPayload]](wire)
		if err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if _, _, err := decoded.Recover(); err != nil {
			t.Errorf("recover after round-trip failed: %v", err)
		}

		// Invariant 3: Tampering with the payload invalidates the envelope
		decoded.Object.Batch = batch + 1
		if _, _, err := decoded.Recover(); err == nil {
			t.Error("recover should fail after payload tampering")
		}
		decoded.Object.Batch = batch
		decoded.Object.Note = note + "x"
		if _, _, err := decoded.Recover(); err == nil {
			t.Error("recover should fail after note tampering")
		}

		// Invariant 4: Swapping in another signer's key invalidates the envelope
		otherPub, _, err := GenerateKeyPair()
		if err != nil {
			t.Fatalf("failed to generate second key pair: %v", err)
		}
		decoded.Object.Note = note
		decoded.PublicKey = otherPub
		if _, _, err := decoded.Recover(); err == nil {
			t.Error("recover should fail with a substituted public key")
		}

		// UnsafeObject skips verification even on a broken envelope
		if decoded.UnsafeObject() == nil {
			t.Error("unsafe object should still be accessible")
		}
	})
}
