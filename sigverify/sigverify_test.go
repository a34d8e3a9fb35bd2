package sigverify

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDomain = NewDomain(1337, common.HexToAddress("0x00000000000000000000000000000000000000AA"))

func TestDigest(t *testing.T) {
	t.Run("Deterministic", func(t *testing.T) {
		a := Digest(testDomain, "I certify X", 1700000000)
		b := Digest(testDomain, "I certify X", 1700000000)
		require.Equal(t, a, b)
	})

	t.Run("TextChangesDigest", func(t *testing.T) {
		a := Digest(testDomain, "I certify X", 1700000000)
		b := Digest(testDomain, "I certify Y", 1700000000)
		require.NotEqual(t, a, b)
	})

	t.Run("TimestampChangesDigest", func(t *testing.T) {
		a := Digest(testDomain, "I certify X", 1700000000)
		b := Digest(testDomain, "I certify X", 1700000001)
		require.NotEqual(t, a, b)
	})

	t.Run("ChainChangesDigest", func(t *testing.T) {
		other := NewDomain(1, testDomain.VerifyingContract)
		a := Digest(testDomain, "I certify X", 1700000000)
		b := Digest(other, "I certify X", 1700000000)
		require.NotEqual(t, a, b)
	})

	t.Run("InstanceChangesDigest", func(t *testing.T) {
		other := NewDomain(1337, common.HexToAddress("0x00000000000000000000000000000000000000BB"))
		a := Digest(testDomain, "I certify X", 1700000000)
		b := Digest(other, "I certify X", 1700000000)
		require.NotEqual(t, a, b)
	})

	t.Run("SeparatorStableAcrossCalls", func(t *testing.T) {
		require.Equal(t, testDomain.Separator(), testDomain.Separator())
	})
}

func TestSignAndVerify(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	t.Run("RoundTrip", func(t *testing.T) {
		sig, err := signer.SignMessage(testDomain, "I certify X", 1700000000)
		require.NoError(t, err)
		require.Len(t, sig, SignatureLength)

		err = Verify(testDomain, "I certify X", 1700000000, signer.Address(), sig)
		require.NoError(t, err)
	})

	t.Run("SignatureHasEVMRecoveryID", func(t *testing.T) {
		sig, err := signer.SignMessage(testDomain, "I certify X", 1700000000)
		require.NoError(t, err)
		assert.Contains(t, []byte{27, 28}, sig[64])
	})

	t.Run("CompactRecoveryIDAccepted", func(t *testing.T) {
		sig, err := signer.SignMessage(testDomain, "I certify X", 1700000000)
		require.NoError(t, err)

		compact := append([]byte(nil), sig...)
		compact[64] -= 27
		err = Verify(testDomain, "I certify X", 1700000000, signer.Address(), compact)
		require.NoError(t, err)
	})

	t.Run("WrongSignerRejected", func(t *testing.T) {
		other, err := GenerateSigner()
		require.NoError(t, err)

		sig, err := signer.SignMessage(testDomain, "I certify X", 1700000000)
		require.NoError(t, err)

		err = Verify(testDomain, "I certify X", 1700000000, other.Address(), sig)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match claimed signer")
	})

	t.Run("TamperedTextRejected", func(t *testing.T) {
		sig, err := signer.SignMessage(testDomain, "I certify X", 1700000000)
		require.NoError(t, err)

		err = Verify(testDomain, "I certify Y", 1700000000, signer.Address(), sig)
		require.Error(t, err)
	})

	t.Run("TamperedTimestampRejected", func(t *testing.T) {
		sig, err := signer.SignMessage(testDomain, "I certify X", 1700000000)
		require.NoError(t, err)

		err = Verify(testDomain, "I certify X", 1700000099, signer.Address(), sig)
		require.Error(t, err)
	})

	t.Run("ZeroTimestampRejected", func(t *testing.T) {
		sig, err := signer.SignMessage(testDomain, "I certify X", 1700000000)
		require.NoError(t, err)

		err = Verify(testDomain, "I certify X", 0, signer.Address(), sig)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be positive")
	})

	t.Run("TruncatedSignatureRejected", func(t *testing.T) {
		sig, err := signer.SignMessage(testDomain, "I certify X", 1700000000)
		require.NoError(t, err)

		err = Verify(testDomain, "I certify X", 1700000000, signer.Address(), sig[:64])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "signature must be 65 bytes")
	})

	t.Run("InvalidRecoveryIDRejected", func(t *testing.T) {
		sig, err := signer.SignMessage(testDomain, "I certify X", 1700000000)
		require.NoError(t, err)

		bad := append([]byte(nil), sig...)
		bad[64] = 99
		err = Verify(testDomain, "I certify X", 1700000000, signer.Address(), bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid recovery id")
	})
}

func TestSignerKeyHandling(t *testing.T) {
	t.Run("NilKeyRejected", func(t *testing.T) {
		_, err := NewSigner(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "private key cannot be nil")
	})

	t.Run("HexRoundTrip", func(t *testing.T) {
		signer, err := GenerateSigner()
		require.NoError(t, err)

		restored, err := NewSignerFromHex(signer.ExportHex())
		require.NoError(t, err)
		require.Equal(t, signer.Address(), restored.Address())
	})

	t.Run("BareHexAccepted", func(t *testing.T) {
		signer, err := GenerateSigner()
		require.NoError(t, err)

		restored, err := NewSignerFromHex(signer.ExportHex()[2:])
		require.NoError(t, err)
		require.Equal(t, signer.Address(), restored.Address())
	})

	t.Run("GarbageHexRejected", func(t *testing.T) {
		_, err := NewSignerFromHex("0xzz")
		require.Error(t, err)
	})
}
