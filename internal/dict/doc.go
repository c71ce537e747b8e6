// Package dict loads HTK-ASCII pronunciation dictionaries: one entry
// per line, `token [output] phone phone ...`, with pronunciation
// variants either on repeated lines or with a `token(2)` suffix.
// Tokens are Unicode-normalized and case-folded before lookup so that
// orthographic input matches dictionary keys regardless of source
// encoding quirks.
package dict
