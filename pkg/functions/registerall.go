package functions

// RegisterAll registers every function set this runtime ships (base,
// web, interpreter). Call once at process startup, before Seal(). The
// Conversation Runtime calls this so a fresh process always has the
// full function catalogue available regardless of which sets a given
// conversation's persona ends up exercising.
func RegisterAll() {
	RegisterBase()
	RegisterWeb()
	RegisterInterpreter()
}
