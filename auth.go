package o3chat

import (
	"encoding/base64"
	"net/http"
)

// basicAuth builds the Authorization value every authenticated request
// carries.
func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func requireLogin(op string, creds Credentials) error {
	if !creds.LoggedIn() {
		return precondition(op, ErrNotLoggedIn)
	}
	return nil
}

func authorize(creds Credentials) func(http.Header) {
	return func(h http.Header) {
		h.Set("Authorization", basicAuth(creds.Username, creds.Password))
	}
}
