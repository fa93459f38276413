// Package credential provides the primitive codecs used by the authentication
// core: digest hashing, constant-time comparison, random token and OTP
// generation, and email shape checks.
//
// # Architecture boundaries
//
// Functions in this package are pure apart from reading the system CSPRNG.
// They hold no state and never log their inputs.
//
// # What this package must NOT do
//
//   - Import adminAuth or any sibling package.
//   - Use math/rand for anything that ends up in a token or OTP.
package credential
