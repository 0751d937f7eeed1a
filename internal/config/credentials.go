package config

// Credentials resolves the gateway application id and token. Values set in
// the configuration win. stored supplies the rest.
func (c Config) Credentials(storedAppID, storedToken string) (appID, token string, err error) {
	appID, token = c.Gateway.ApplicationID, c.Gateway.Token
	if appID == "" {
		appID = storedAppID
	}
	if token == "" {
		token = storedToken
	}
	if appID == "" || token == "" {
		return appID, token, ErrMissingCredentials
	}
	return appID, token, nil
}
