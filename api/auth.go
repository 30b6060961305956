package api

import (
	"net/http"
	"strings"

	"github.com/rus-sharafiev/go-rest-common/exception"

	"github.com/ihazratummar/Neat-Roots-Chat-app/client"
	"github.com/ihazratummar/Neat-Roots-Chat-app/user"
)

type authController struct {
	*API
}

type LoginResult struct {
	User        *user.Profile `json:"user"`
	AccessToken string        `json:"accessToken"`
}

func (c *authController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		exception.MethodNotAllowed(w)
		return
	}

	switch strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth"), "/") {
	case "signup":
		c.signUp(w, r)
	case "login":
		c.login(w, r)
	default:
		http.NotFound(w, r)
	}
}

// -- SIGN UP ---------------------------------------------------------------------

func (c *authController) signUp(w http.ResponseWriter, r *http.Request) {
	var dto user.RegisterDto
	if !c.readJSON(w, r, &dto) {
		return
	}

	cl := c.Clients.New(false)
	defer cl.Close()
	if err := cl.Users.Register(r.Context(), dto); err != nil {
		c.writeError(w, err)
		return
	}
	c.respondSignedIn(w, cl, http.StatusCreated)
}

// -- LOGIN -----------------------------------------------------------------------

func (c *authController) login(w http.ResponseWriter, r *http.Request) {
	var dto user.LoginDto
	if !c.readJSON(w, r, &dto) {
		return
	}

	cl := c.Clients.New(false)
	defer cl.Close()
	if err := cl.Users.SignIn(r.Context(), dto); err != nil {
		c.writeError(w, err)
		return
	}
	c.respondSignedIn(w, cl, http.StatusOK)
}

func (c *authController) respondSignedIn(w http.ResponseWriter, cl *client.Client, status int) {
	userID, err := cl.UserID()
	if err != nil {
		c.writeError(w, err)
		return
	}
	token, err := c.Tokens.GenerateAccessToken(userID)
	if err != nil {
		exception.InternalServerError(w, err)
		return
	}
	writeJSON(w, status, LoginResult{User: cl.Users.Profile.Get(), AccessToken: token})
}
