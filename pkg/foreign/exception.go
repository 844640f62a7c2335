package foreign

// Exception is a foreign exception surfaced to host code. It keeps the
// exception object alive until Release is called, so the same object can be
// raised again unchanged.
type Exception struct {
	Class   string
	Message string
	obj     *Object
}

func newException(tok *Token, obj *Object) *Exception {
	class, msg, ok := tok.in.rt.ExceptionInfo(obj.p)
	if !ok {
		class = tok.in.rt.TypeName(obj.p)
	}
	return &Exception{Class: class, Message: msg, obj: obj}
}

// ExceptionFromObject wraps an exception object owned by the caller.
func ExceptionFromObject(tok *Token, obj *Object) *Exception {
	obj.use(tok, "exception")
	return newException(tok, obj)
}

func (e *Exception) Error() string {
	if e.Message == "" {
		return e.Class
	}
	return e.Class + ": " + e.Message
}

// Object returns the exception object handle.
func (e *Exception) Object() *Object {
	return e.obj
}

// Release gives back the exception object without a token.
func (e *Exception) Release() {
	e.obj.Release()
}
