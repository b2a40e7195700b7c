package core

// Identity is the acting user as supplied by the identity provider.
// It is only used to tag ownership and to disambiguate uploaded file names.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Province string `json:"province,omitempty"`
	Ward     string `json:"ward,omitempty"`
	School   string `json:"school,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

func (id Identity) IsAnonymous() bool { return id.ID == "" }

// Logger logs messages and errors.
// args may carry an error, a map[string]interface{} of extras and an Identity (the acting user).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
