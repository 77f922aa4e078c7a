package auth

import (
	"fmt"

	"golang.org/x/oauth2"

	"ridemetrics/internal/config"
	"ridemetrics/internal/store"
)

const (
	// Strava OAuth endpoints
	AuthURL  = "https://www.strava.com/oauth/authorize"
	TokenURL = "https://www.strava.com/oauth/token"
)

// Scopes required for our app (Strava uses comma-separated scopes)
var Scopes = []string{
	"read,activity:read_all",
}

// RedirectURL is the callback address served by Authenticate
var RedirectURL = fmt.Sprintf("http://localhost:%d/callback", CallbackPort)

// NewOAuthConfig creates an oauth2.Config from the Strava credentials
func NewOAuthConfig(cfg config.StravaConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   AuthURL,
			TokenURL:  TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: RedirectURL,
		Scopes:      Scopes,
	}
}

// AuthResult contains the token and athlete info from successful auth
type AuthResult struct {
	Token     *oauth2.Token
	AthleteID int64
}

// StoreAuth converts the result into its stored form
func (r *AuthResult) StoreAuth() *store.Auth {
	return &store.Auth{
		AthleteID:    r.AthleteID,
		AccessToken:  r.Token.AccessToken,
		RefreshToken: r.Token.RefreshToken,
		ExpiresAt:    r.Token.Expiry,
	}
}

// TokenFromAuth rebuilds an oauth2 token from stored credentials
func TokenFromAuth(a *store.Auth) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       a.ExpiresAt,
	}
}

// ExtractAthleteID extracts the athlete ID from the token extras
// Strava includes athlete info in the token response
func ExtractAthleteID(token *oauth2.Token) int64 {
	if athlete, ok := token.Extra("athlete").(map[string]interface{}); ok {
		if id, ok := athlete["id"].(float64); ok {
			return int64(id)
		}
	}
	return 0
}
