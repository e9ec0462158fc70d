// Package shared holds the error taxonomy used across jobkeeper.
//
// Stores, the scheduling core and the cron adapter wrap one of five
// sentinels (ErrNotFound, ErrValidation, ErrConflict, ErrTimeout,
// ErrDependencyFailure). Transport code then maps failures with KindOf and
// never imports domain packages:
//
//	switch shared.KindOf(err) {
//	case shared.KindNotFound:
//	    // 404
//	case shared.KindDependencyFailure:
//	    // 503
//	}
//
// MarkKind attaches a kind to a driver error, and Transient tells retry
// loops which failures are worth another attempt.
package shared
