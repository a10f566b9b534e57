package tanium

// Credentials holds either a username/password pair or an API token.
// Exactly one variant must be populated.
type Credentials struct {
	Username string
	Password string
	APIToken string
}

// BasicCredentials returns username/password credentials.
func BasicCredentials(username, password string) Credentials {
	return Credentials{Username: username, Password: password}
}

// TokenCredentials returns API token credentials.
func TokenCredentials(token string) Credentials {
	return Credentials{APIToken: token}
}

// UsesToken reports whether the API token variant is in effect.
func (c Credentials) UsesToken() bool { return c.APIToken != "" }

func (c Credentials) hasBasic() bool { return c.Username != "" && c.Password != "" }

// Validate rejects credentials that set both variants or neither.
func (c Credentials) Validate() error {
	switch {
	case c.hasBasic() && c.UsesToken():
		return &ConfigurationError{Message: "Please clear either the Credentials or the API Token fields.\n" +
			"If you wish to use basic authentication please provide username and password, " +
			"and leave the API Token field empty.\n" +
			"If you wish to use OAuth 2 authentication, please provide an API Token and leave the " +
			"Credentials and Password fields empty."}
	case !c.hasBasic() && !c.UsesToken():
		return &ConfigurationError{Message: "Please provide either an API Token or Username & Password."}
	}
	return nil
}
