package people

import "community-chat/internal/identity"

// Account is a row in one of the three identity tables. Which table is
// determined by Participant.Kind.
type Account struct {
	Participant identity.Participant `json:"participant"`
	Username    string               `json:"username"`
	Password    string               `json:"-"`
	DisplayName string               `json:"display_name"`
}

type RegisterRequest struct {
	Kind        identity.Kind `json:"kind"`
	Username    string        `json:"username"`
	Password    string        `json:"password"`
	DisplayName string        `json:"display_name"`
}

type LoginRequest struct {
	Kind     identity.Kind `json:"kind"`
	Username string        `json:"username"`
	Password string        `json:"password"`
}

type LoginResponse struct {
	AccessToken string        `json:"access_token"`
	Kind        identity.Kind `json:"kind"`
	ID          int           `json:"id"`
	DisplayName string        `json:"display_name"`
}
