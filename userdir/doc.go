// Package userdir is the credential directory the authentication core looks
// accounts up in. Its only contract is find-by-email and find-by-id returning
// the account together with its password hash.
//
// [Memory] holds a fixed, immutable account list (the two demo accounts by
// default, or a YAML seed file). [Postgres] reads the same shape from an
// admin_users table.
package userdir
