package handlers

import (
	"errors"
	"net/http"

	"github.com/vshumov/minibank/internal/apperrors"
	"github.com/vshumov/minibank/internal/handlers/render"
	"github.com/vshumov/minibank/internal/logger"
)

func handleRegister(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Name     string `json:"name" validate:"required,min=2,max=50"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}
	type response struct {
		Message       string `json:"message"`
		AccountNumber string `json:"accountNumber"`
		AccessToken   string `json:"accessToken"`
		RefreshToken  string `json:"refreshToken"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		account, pair, err := authService.Register(r.Context(), data.Name, data.Email, data.Password)

		switch {
		case err == nil:
			render.JSON(w, response{
				Message:       "Account registered successfully",
				AccountNumber: account.AccountNumber,
				AccessToken:   pair.Access.Value,
				RefreshToken:  pair.Refresh.Value,
			})
		case errors.Is(err, apperrors.ErrAccountAlreadyExists):
			render.ServiceError(w, "Account already exists", http.StatusConflict)
		default:
			l.Error("Failed to register account", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	type response struct {
		Message      string `json:"message"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		_, pair, err := authService.Login(r.Context(), data.Email, data.Password)

		switch {
		case err == nil:
			render.JSON(w, response{
				Message:      "Logged in successfully",
				AccessToken:  pair.Access.Value,
				RefreshToken: pair.Refresh.Value,
			})
		case errors.Is(err, apperrors.ErrUnauthenticated):
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
		default:
			l.Error("Failed to login", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleRefresh(authService authService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}
	type response struct {
		Message      string `json:"message"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Refresh(r.Context(), data.RefreshToken)

		switch {
		case err == nil:
			render.JSON(w, response{
				Message:      "Tokens refreshed successfully",
				AccessToken:  pair.Access.Value,
				RefreshToken: pair.Refresh.Value,
			})
		case errors.Is(err, apperrors.ErrRefreshTokenExpired):
			render.ServiceError(w, "Refresh token expired", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound), errors.Is(err, apperrors.ErrRefreshTokenIsUsed):
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		default:
			l.Error("Failed to refresh tokens", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
