package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const indentUnit = "    "

// String renders the state as an indented, debug-style tree.
func (s State) String() string {
	var b strings.Builder
	b.WriteString("ContractState {\n")

	b.WriteString(indentUnit)
	b.WriteString("network: ")
	b.WriteString(s.Network.String())
	b.WriteString(",\n")

	b.WriteString(indentUnit)
	b.WriteString("version: ")
	if s.HasVersion {
		b.WriteString(strconv.FormatUint(s.Version, 10))
	} else {
		b.WriteString("none")
	}
	b.WriteString(",\n")

	b.WriteString(indentUnit)
	b.WriteString("data: ")
	writeValue(&b, s.Data, 1)
	b.WriteString(",\n")

	b.WriteString("}")
	return b.String()
}

func writeValue(b *strings.Builder, value interface{}, depth int) {
	switch typed := value.(type) {
	case []interface{}:
		if len(typed) == 0 {
			b.WriteString("[]")
			return
		}
		b.WriteString("[\n")
		for _, item := range typed {
			b.WriteString(strings.Repeat(indentUnit, depth+1))
			writeValue(b, item, depth+1)
			b.WriteString(",\n")
		}
		b.WriteString(strings.Repeat(indentUnit, depth))
		b.WriteString("]")
	case []byte:
		b.WriteString(renderBytes(typed))
	default:
		fmt.Fprintf(b, "%v", typed)
	}
}

// renderBytes prints printable ASCII as a quoted string and everything else as hex.
func renderBytes(data []byte) string {
	if len(data) == 0 {
		return `""`
	}
	for _, c := range data {
		if c < 0x20 || c > 0x7e {
			return hexutil.Encode(data)
		}
	}
	return strconv.Quote(string(data))
}
