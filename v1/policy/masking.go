package policy

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/rcms-care/portal-backend/v1/models"
)

const restrictedLabel = "Restricted"

// DisplayName returns the client name the role is allowed to see on the
// case. Full access yields the full name; restricted cases render the
// fixed restricted label; everything else gets a masked form. Output is
// deterministic for identical inputs so repeated renders agree.
func DisplayName(role models.Role, cs models.CaseSnapshot) string {
	return DisplayNameFor(role, cs, "")
}

// DisplayNameFor is DisplayName with the designated-attorney exception
// applied for the given requester.
func DisplayNameFor(role models.Role, cs models.CaseSnapshot, requesterID string) string {
	if CanSeeSensitiveFor(role, cs, requesterID) {
		if cs.Client.FullName != "" {
			return cs.Client.FullName
		}
		return pseudonym(cs)
	}
	if cs.Consent.RestrictedAccess {
		return restrictedLabel
	}
	if masked := MaskName(cs.Client.FullName); masked != "" {
		return masked
	}
	return pseudonym(cs)
}

// MaskName reduces a full name to first name plus last-name initial,
// e.g. "Alice Barnes" -> "Alice B.". Single-word names keep only their
// initial. Empty input yields empty output.
func MaskName(fullName string) string {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return string([]rune(parts[0])[0]) + "."
	}
	last := []rune(parts[len(parts)-1])
	return fmt.Sprintf("%s %c.", parts[0], last[0])
}

// pseudonym generates a stable per-case label for cases with no stored
// name. Keyed on the client RCMS id (falling back to the case id) so the
// same case always renders the same pseudonym.
func pseudonym(cs models.CaseSnapshot) string {
	seed := cs.Client.RcmsID
	if seed == "" {
		seed = cs.ID
	}
	h := fnv.New32a()
	h.Write([]byte(seed))
	return fmt.Sprintf("Client-%06X", h.Sum32()&0xFFFFFF)
}
