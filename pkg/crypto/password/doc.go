// Package password hashes and verifies passwords with Argon2id.
//
// Digests use the PHC string format:
//
//	$argon2id$v=19$m=<KiB>,t=<iterations>,p=<parallelism>$<salt>$<key>
//
// with unpadded standard Base64 for salt and key. Verification compares
// keys in constant time and refuses digests whose cost parameters exceed
// twice the configured ones.
package password
