package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ERC20ABI covers the token calls the relayer makes
const ERC20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// TokenMessengerABI is the burn entry point of TokenMessengerV2
const TokenMessengerABI = `[{
	"inputs": [
		{"internalType": "uint256", "name": "amount", "type": "uint256"},
		{"internalType": "uint32", "name": "destinationDomain", "type": "uint32"},
		{"internalType": "bytes32", "name": "mintRecipient", "type": "bytes32"},
		{"internalType": "address", "name": "burnToken", "type": "address"},
		{"internalType": "bytes32", "name": "destinationCaller", "type": "bytes32"},
		{"internalType": "uint256", "name": "maxFee", "type": "uint256"},
		{"internalType": "uint32", "name": "minFinalityThreshold", "type": "uint32"}
	],
	"name": "depositForBurn",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// MessageTransmitterABI is the mint entry point of MessageTransmitterV2
const MessageTransmitterABI = `[{
	"inputs": [
		{"internalType": "bytes", "name": "message", "type": "bytes"},
		{"internalType": "bytes", "name": "attestation", "type": "bytes"}
	],
	"name": "receiveMessage",
	"outputs": [{"internalType": "bool", "name": "success", "type": "bool"}],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// CustodyWalletABI is the relayer-callable withdrawal of a user's custody contract
const CustodyWalletABI = `[{
	"inputs": [
		{"internalType": "address", "name": "token", "type": "address"},
		{"internalType": "address", "name": "to", "type": "address"},
		{"internalType": "uint256", "name": "amount", "type": "uint256"}
	],
	"name": "release",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

var (
	erc20ABI              = mustParseABI(ERC20ABI)
	tokenMessengerABI     = mustParseABI(TokenMessengerABI)
	messageTransmitterABI = mustParseABI(MessageTransmitterABI)
	custodyWalletABI      = mustParseABI(CustodyWalletABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("invalid ABI: " + err.Error())
	}
	return parsed
}
