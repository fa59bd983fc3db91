// Package jwtutil decodes the unsigned payload segment of OpenAI JWT access
// and id tokens. No signature verification happens here: the claims are only
// used to identify which ChatGPT account a token belongs to.
package jwtutil

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Claim namespaces used by auth.openai.com issued tokens.
const (
	authClaimNamespace    = "https://api.openai.com/auth"
	profileClaimNamespace = "https://api.openai.com/profile"
)

// Payload carries the identity claims extracted from a token.
type Payload struct {
	AccountID string
	Email     string
	PlanType  string
}

// Decode parses the middle segment of a three-segment JWT and extracts the
// ChatGPT account id, email, and plan type claims. Any malformed input yields
// nil; this function never fails loudly.
func Decode(token string) *Payload {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}

	decoded, err := decodeSegment(parts[1])
	if err != nil {
		return nil
	}

	var claims map[string]any
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return nil
	}

	payload := &Payload{}
	if auth, ok := claims[authClaimNamespace].(map[string]any); ok {
		payload.AccountID, _ = auth["chatgpt_account_id"].(string)
		payload.PlanType, _ = auth["chatgpt_plan_type"].(string)
	}
	if profile, ok := claims[profileClaimNamespace].(map[string]any); ok {
		payload.Email, _ = profile["email"].(string)
	}
	if payload.Email == "" {
		// id_tokens carry email as a top level claim
		payload.Email, _ = claims["email"].(string)
	}

	return payload
}

func decodeSegment(segment string) ([]byte, error) {
	switch len(segment) % 4 {
	case 2:
		segment += "=="
	case 3:
		segment += "="
	}

	decoded, err := base64.URLEncoding.DecodeString(segment)
	if err != nil {
		return base64.StdEncoding.DecodeString(segment)
	}
	return decoded, nil
}
