// Package gridem generalizes the exist_ok/missing_ok idempotent add/delete
// pattern used throughout the control-plane API (§7, §8 scenario 2),
// grounded on original_source/modules/ip/api/dnat44.c's dnat44_add/
// dnat44_del: adding an already-existing rule succeeds silently if its
// value is unchanged and exist_ok was requested, but returns EADDRINUSE if
// the existing value differs; deleting an already-absent rule succeeds
// silently if missing_ok was requested.
package gridem

import "github.com/grout-project/groutd/internal/grerrno"

// Add applies the dnat44_add decision table: existing reports whether a
// value of this key already exists and, if so, its value; same reports
// whether that existing value equals the one being added.
//
//   - no existing value: the caller should proceed to insert.
//   - existing value, same: exist_ok allows the call to succeed as a
//     no-op; without exist_ok, EEXIST.
//   - existing value, different: always EADDRINUSE, exist_ok or not —
//     idempotency never papers over a conflicting redefinition.
//
// Add returns (proceed=true, nil) when the caller should perform the
// actual insert; (false, nil) when the call is a successful no-op;
// (false, err) when the call must fail.
func Add(existing bool, same bool, existOK bool) (proceed bool, err error) {
	if !existing {
		return true, nil
	}
	if !same {
		return false, grerrno.EADDRINUSE
	}
	if existOK {
		return false, nil
	}
	return false, grerrno.EEXIST
}

// Delete applies the dnat44_del decision table: existing reports whether a
// value of this key currently exists; when it does, same reports whether
// it equals the value the caller expects to be deleting (a delete request
// in this protocol names the rule it expects to remove, not just its key).
//
// Delete returns (proceed=true, nil) when the caller should perform the
// actual removal; (false, nil) when the call is a successful no-op;
// (false, err) when the call must fail.
func Delete(existing bool, same bool, missingOK bool) (proceed bool, err error) {
	if !existing {
		if missingOK {
			return false, nil
		}
		return false, grerrno.ENOENT
	}
	if !same {
		return false, grerrno.EADDRINUSE
	}
	return true, nil
}
