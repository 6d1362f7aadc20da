package auth

// Service is the runner identity contract consumed by gateway and HTTP handlers.
//
// Register issues a fresh runner key. The key is returned exactly once and only
// its bcrypt hash is kept, so callers must store it; Login exchanges name+key
// for a session token used on the websocket and the HTTP APIs.
type Service interface {
	Register(name string) (runnerID uint64, runnerKey string, err error)
	Login(name, runnerKey string) (runnerID uint64, sessionToken string, err error)
	ResolveSession(token string) (runnerID uint64, name string, ok bool)
	Logout(token string)
	Close() error
}
