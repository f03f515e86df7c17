package http

import (
	"net/http"

	"expenses/internal/services"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) error {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return err
	}

	user, err := s.users.Register(r.Context(), services.RegisterInput{
		Username: p.Get("username"),
		Email:    p.Get("email"),
		// Passwords are taken verbatim.
		Password: p.raw("password"),
	})
	if err != nil {
		return err
	}

	NewResponse().
		Status(http.StatusCreated).
		Data(user).
		Message("User registered successfully").
		Write(w)
	return nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) error {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return err
	}

	session, err := s.users.Login(r.Context(), p.Get("email"), p.raw("password"))
	if err != nil {
		return err
	}

	NewResponse().
		Data(session).
		Message("User logged in successfully").
		Cookies(s.cookies.session(session.TokenPair)).
		Write(w)
	return nil
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) error {
	if err := s.users.Logout(r.Context(), userFromContext(r.Context()).ID); err != nil {
		return err
	}

	NewResponse().
		Message("User logged out").
		Cookies(s.cookies.cleared()).
		Write(w)
	return nil
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) error {
	token := cookieValue(r, refreshTokenCookie)
	if token == "" {
		p := NewRequestBodyParser(w, r)
		if err := p.Parse(); err != nil {
			return err
		}
		token = p.Get("refreshToken")
	}

	pair, err := s.users.Refresh(r.Context(), token)
	if err != nil {
		return err
	}

	NewResponse().
		Data(pair).
		Message("Access token refreshed").
		Cookies(s.cookies.session(pair)).
		Write(w)
	return nil
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) error {
	NewResponse().
		Data(userFromContext(r.Context()).Public()).
		Message("Current user fetched successfully").
		Write(w)
	return nil
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) error {
	if err := s.users.DeleteAccount(r.Context(), userFromContext(r.Context()).ID); err != nil {
		return err
	}

	NewResponse().
		Message("Account deleted successfully").
		Cookies(s.cookies.cleared()).
		Write(w)
	return nil
}
