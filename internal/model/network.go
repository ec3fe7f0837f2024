package model

import (
	"fmt"
	"strconv"
	"strings"
)

// NetworkID identifies the ledger network an indexer serves.
type NetworkID uint8

const (
	NetworkUndeployed NetworkID = iota
	NetworkDevNet
	NetworkTestNet
	NetworkMainNet
)

var networkNames = map[NetworkID]string{
	NetworkUndeployed: "undeployed",
	NetworkDevNet:     "devnet",
	NetworkTestNet:    "testnet",
	NetworkMainNet:    "mainnet",
}

func (n NetworkID) String() string {
	if name, ok := networkNames[n]; ok {
		return name
	}
	return fmt.Sprintf("network(%d)", uint8(n))
}

// Valid reports whether n is one of the supported networks.
func (n NetworkID) Valid() bool {
	_, ok := networkNames[n]
	return ok
}

// ParseNetworkID accepts a network name or its numeric code.
func ParseNetworkID(input string) (NetworkID, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return 0, fmt.Errorf("network is required")
	}
	for id, name := range networkNames {
		if name == input {
			return id, nil
		}
	}
	code, err := strconv.ParseUint(input, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown network: %s", input)
	}
	id := NetworkID(code)
	if !id.Valid() {
		return 0, fmt.Errorf("unknown network code: %d", code)
	}
	return id, nil
}
