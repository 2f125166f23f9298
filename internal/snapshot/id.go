package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const symbolIDLen = 24

// SymbolID derives the stable identifier for a definition: the first 24 hex
// characters of SHA-256("<path>:<kind>:<name>:<start_line>").
//
// No collision detection is performed. Two same-kind, same-name definitions
// cannot legally start on the same line of the same file.
func SymbolID(relPath string, kind SymbolKind, name string, startLine int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%s:%d", relPath, kind, name, startLine))
	return hex.EncodeToString(sum[:])[:symbolIDLen]
}
