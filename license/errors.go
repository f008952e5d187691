package license

import "errors"

var (
	// ErrKeyNotFound reports redemption of a code that was never issued.
	ErrKeyNotFound = errors.New("license: key not found")

	// ErrKeyAlreadyUsed reports redemption of a consumed key. Repeated
	// attempts on the same key always fail this way; the grant is never
	// re-applied.
	ErrKeyAlreadyUsed = errors.New("license: key already used")

	// ErrHardwareMismatch reports a launcher authenticating from a machine
	// other than the one bound to the account.
	ErrHardwareMismatch = errors.New("license: account bound to different hardware")

	// ErrDuplicateKey reports exhausted regeneration attempts on code
	// collisions at issuance.
	ErrDuplicateKey = errors.New("license: key code collision")
)
