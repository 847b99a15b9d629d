// Package password hashes and verifies passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Parameters are read back from the stored string, so raising the costs in
// [Config] never breaks verification of older hashes; [Argon2.NeedsUpgrade]
// reports when a stored hash was produced with weaker costs.
package password
