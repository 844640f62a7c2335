// Package foreign implements the interpreter-access token and the ownership
// model for foreign objects.
//
// An Interpreter is one session of an embedded interpreter reached through
// abi.Runtime. Every operation on a foreign object requires a *Token proving
// that the session's global lock is held:
//
//	tok, err := in.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tok.Release()
//
//	obj := tok.Own(tok.Runtime().NewStr("hello"))
//	defer obj.Drop(tok)
//
// Acquisition is re-entrant. A context carrying a live token (WithToken)
// makes Acquire return a nested token instead of blocking, and
// Token.Reacquire nests explicitly. Only releasing the outermost token gives
// the lock back.
//
// # Ownership
//
// An *Object owns exactly one reference. Clone adds a reference, Drop gives
// it back immediately, and Release gives it back later: the decrement is
// queued and performed the next time any token is acquired on the session,
// so reference counts only ever change under the lock.
//
// Bound pairs an object with the token that proves access to it; its
// methods need no further checks.
//
// # Discipline violations
//
// Using a released token, a token of another session, or a dropped object is
// a bug in the glue, not bad input. Such calls panic with *DisciplineError.
package foreign
