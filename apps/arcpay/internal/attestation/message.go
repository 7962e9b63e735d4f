package attestation

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Byte offsets inside a v2 bridge message: a 148 byte header followed by the burn body
const (
	sourceDomainOffset      = 4
	destinationDomainOffset = 8
	headerLength            = 148
	mintRecipientOffset     = headerLength + 36
	amountOffset            = headerLength + 68
	minBurnMessageLength    = amountOffset + 32
)

// BurnMessage is the part of a bridge message the relayer cares about
type BurnMessage struct {
	SourceDomain      uint32
	DestinationDomain uint32
	MintRecipient     common.Address
	Amount            *big.Int
}

// DecodeBurnMessage extracts routing and value fields from raw message bytes
func DecodeBurnMessage(message []byte) (*BurnMessage, error) {
	if len(message) < minBurnMessageLength {
		return nil, fmt.Errorf("message too short: %d bytes, want at least %d", len(message), minBurnMessageLength)
	}

	return &BurnMessage{
		SourceDomain:      binary.BigEndian.Uint32(message[sourceDomainOffset : sourceDomainOffset+4]),
		DestinationDomain: binary.BigEndian.Uint32(message[destinationDomainOffset : destinationDomainOffset+4]),
		MintRecipient:     common.BytesToAddress(message[mintRecipientOffset : mintRecipientOffset+32]),
		Amount:            new(big.Int).SetBytes(message[amountOffset : amountOffset+32]),
	}, nil
}

// EncodeBurnMessage builds a minimal message with the fields DecodeBurnMessage reads.
// Useful for tests and local tooling; it is not a valid signed bridge message.
func EncodeBurnMessage(m BurnMessage) []byte {
	out := make([]byte, minBurnMessageLength)
	binary.BigEndian.PutUint32(out[sourceDomainOffset:], m.SourceDomain)
	binary.BigEndian.PutUint32(out[destinationDomainOffset:], m.DestinationDomain)
	copy(out[mintRecipientOffset:mintRecipientOffset+32], common.LeftPadBytes(m.MintRecipient.Bytes(), 32))
	if m.Amount != nil {
		m.Amount.FillBytes(out[amountOffset : amountOffset+32])
	}
	return out
}
