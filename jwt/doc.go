// Package jwt signs the auth projection a client persists between runs, so
// that a projection edited on disk is rejected instead of restored.
package jwt
