package models

import "github.com/golang-jwt/jwt/v5"

// UserType identifies which side of the marketplace a caller acts for.
type UserType string

const (
	UserTypeClient    UserType = "client"
	UserTypeTherapist UserType = "therapist"
	UserTypeAdmin     UserType = "admin"
	UserTypeSystem    UserType = "system"
)

// JWTClaims represents the JWT payload issued by the authentication collaborator.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	UserType UserType `json:"user_type"`
	jwt.RegisteredClaims
}

// Actor is the verified (userId, userType) pair every engine operation runs on behalf of.
type Actor struct {
	UserID   string   `json:"user_id"`
	UserType UserType `json:"user_type"`
}

// SystemActor is used by background sweeps.
var SystemActor = Actor{UserType: UserTypeSystem}

// ActorFromClaims converts token claims into an Actor.
func ActorFromClaims(claims *JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, UserType: claims.UserType}
}

// IsAdmin reports whether the actor may act on any session.
func (a Actor) IsAdmin() bool { return a.UserType == UserTypeAdmin }

// IsSystem reports whether the actor is an internal sweep.
func (a Actor) IsSystem() bool { return a.UserType == UserTypeSystem }

// Valid reports whether the actor carries a usable identity.
func (a Actor) Valid() bool {
	switch a.UserType {
	case UserTypeSystem:
		return true
	case UserTypeClient, UserTypeTherapist, UserTypeAdmin:
		return a.UserID != ""
	default:
		return false
	}
}
