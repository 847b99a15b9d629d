// Package cache provides the key-value capability the session layer persists into.
//
// [Repository] is deliberately small (get/set/delete/scan). [Memory] backs tests and
// single-process deployments; [Redis] backs shared deployments. Individual operations are
// atomic; multi-key sequences are not and callers must order their writes accordingly.
//
// [Locker] is an optional companion used to serialize check-then-act sequences on one key.
package cache
