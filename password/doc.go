// Package password implements credential hashing and the password policy used
// when seeding or changing admin-panel accounts.
//
// # Hashers
//
// [SHA256] is the default: a deterministic hex digest compared in constant time.
// [Argon2] produces PHC strings for deployments that want a slow adaptive hash:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # Policy
//
// [Validate] checks length, character classes and the common-password
// deny-list, and reports a coarse strength rating.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import adminAuth or any sibling package other than credential.
//   - Log plaintext passwords.
package password
