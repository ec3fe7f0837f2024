package indexer

import (
	"strconv"
	"strings"

	"contractScope/internal/model"
)

// FramedAddress prefixes a raw contract address with "0" and the decimal
// network code, which is how the indexer keys contract subscriptions.
func FramedAddress(network model.NetworkID, address string) string {
	return "0" + strconv.Itoa(int(network)) + address
}

// ParseAddresses trims the inputs and drops empty and duplicate entries.
func ParseAddresses(inputs []string) []string {
	seen := make(map[string]struct{}, len(inputs))
	addresses := make([]string, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if _, ok := seen[input]; ok {
			continue
		}
		seen[input] = struct{}{}
		addresses = append(addresses, input)
	}
	return addresses
}
