// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSID is returned by ValidateSID for any string that is not
// a well-formed domain or local user account SID.
var ErrInvalidSID = errors.New("endpoint: invalid launcher SID")

// Broad group identities that would grant pipe access to effectively
// every local process. Structurally these already fail the account-SID
// shape check; naming them gives the operator a usable error.
var broadSIDs = map[string]string{
	"S-1-1-0":  "Everyone",
	"S-1-5-7":  "Anonymous Logon",
	"S-1-5-11": "Authenticated Users",
}

// ValidateSID reports whether s names a single user account. Accepted
// SIDs have the shape S-1-5-21-<d1>-<d2>-<d3>-<rid> where every
// component is a decimal uint32. Group and well-known identities such
// as Everyone, Authenticated Users, or anything under BUILTIN
// (S-1-5-32-*) are rejected: interpolated into the pipe security
// descriptor they would open the channel to arbitrary processes.
func ValidateSID(s string) error {
	if name, ok := broadSIDs[s]; ok {
		return fmt.Errorf("%w: %q is the %s group, not a user account", ErrInvalidSID, s, name)
	}
	if strings.HasPrefix(s, "S-1-5-32-") {
		return fmt.Errorf("%w: %q is a BUILTIN group, not a user account", ErrInvalidSID, s)
	}

	parts := strings.Split(s, "-")
	if len(parts) != 8 || parts[0] != "S" || parts[1] != "1" || parts[2] != "5" || parts[3] != "21" {
		return fmt.Errorf("%w: %q is not of the form S-1-5-21-<d1>-<d2>-<d3>-<rid>", ErrInvalidSID, s)
	}
	for _, sub := range parts[4:] {
		if sub == "" {
			return fmt.Errorf("%w: %q has an empty subauthority", ErrInvalidSID, s)
		}
		if sub[0] == '0' && len(sub) > 1 {
			return fmt.Errorf("%w: %q has a zero-padded subauthority", ErrInvalidSID, s)
		}
		if _, err := strconv.ParseUint(sub, 10, 32); err != nil {
			return fmt.Errorf("%w: %q has a non-numeric subauthority %q", ErrInvalidSID, s, sub)
		}
	}
	return nil
}
