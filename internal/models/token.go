package models

import "time"

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshToken is the persisted record backing a live session. Its presence
// in the store is the sole authority for "this refresh token is still live";
// a valid signature alone is never sufficient. Records are only ever inserted
// and deleted, never updated in place.
type RefreshToken struct {
	Value       string    `json:"value" dynamodbav:"token_value"`
	PrincipalID string    `json:"principal_id" dynamodbav:"principal_id"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt   time.Time `json:"expires_at" dynamodbav:"expires_at"`
}
