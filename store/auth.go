package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// AuthUser is the subset of a Supabase auth user this service reads.
type AuthUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

// Profile mirrors the profiles table kept in sync with auth users.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	Role      string `json:"role,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type authError struct {
	Msg       string `json:"msg"`
	Message   string `json:"message"`
	ErrorDesc string `json:"error_description"`
}

func (e *authError) text() string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.Message != "":
		return e.Message
	case e.ErrorDesc != "":
		return e.ErrorDesc
	}
	return "authentication failed"
}

// SignUp registers a new user with the hosted auth service. The
// profiles row is created by a database trigger.
func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (*AuthUser, error) {
	payload, _ := json.Marshal(map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"full_name": fullName},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/signup", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("store: create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")

	return c.doAuthUser(req)
}

// SignInWithPassword exchanges credentials for the auth user identity.
// The returned user feeds local token issuance; the hosted session is
// discarded.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*AuthUser, error) {
	payload, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	u := c.baseURL + "/auth/v1/token?grant_type=password"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("store: create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")

	return c.doAuthUser(req)
}

// AdminGetUser resolves an auth user by id with the service key. The
// scheduler uses this to find the notification email for a task owner.
func (c *Client) AdminGetUser(ctx context.Context, userID string) (*AuthUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/admin/users/"+userID, nil)
	if err != nil {
		return nil, fmt.Errorf("store: create request: %w", err)
	}
	c.serviceHeaders(req)

	body, _, err := c.do(req, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("store: admin get user %s: %w", userID, err)
	}
	var user AuthUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("store: decode auth user: %w", err)
	}
	return &user, nil
}

// GetProfile fetches the profiles row for a user id.
func (c *Client) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	rows, err := c.Query(ctx, "profiles", QueryOptions{Filters: map[string]string{"id": userID}})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("store: profile %s not found", userID)
	}
	var p Profile
	if err := json.Unmarshal(rows[0], &p); err != nil {
		return nil, fmt.Errorf("store: decode profile: %w", err)
	}
	return &p, nil
}

// AdminCreateUser provisions an auth user with the service key,
// pre-confirming the email. When role is not the default, the profiles
// row created by the trigger is patched to match.
func (c *Client) AdminCreateUser(ctx context.Context, email, password, fullName, role string) (*AuthUser, error) {
	payload, _ := json.Marshal(map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
		"user_metadata": map[string]string{"full_name": fullName},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/admin/users", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("store: create request: %w", err)
	}
	c.serviceHeaders(req)

	user, err := c.doAuthUser(req)
	if err != nil {
		return nil, fmt.Errorf("store: admin create user: %w", err)
	}
	if role != "" && role != "user" {
		if _, err := c.UpdateProfile(ctx, user.ID, map[string]any{"role": role}); err != nil {
			return nil, fmt.Errorf("store: set role for new user %s: %w", user.ID, err)
		}
	}
	return user, nil
}

// AdminDeleteUser removes an auth user with the service key. The
// profiles row and owned tasks cascade in the database.
func (c *Client) AdminDeleteUser(ctx context.Context, userID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/auth/v1/admin/users/"+userID, nil)
	if err != nil {
		return fmt.Errorf("store: create request: %w", err)
	}
	c.serviceHeaders(req)

	if _, _, err := c.do(req, http.StatusOK, http.StatusNoContent); err != nil {
		return fmt.Errorf("store: admin delete user %s: %w", userID, err)
	}
	return nil
}

// UpdateProfile patches a profiles row and returns the result.
func (c *Client) UpdateProfile(ctx context.Context, userID string, changes map[string]any) (*Profile, error) {
	row, err := c.Update(ctx, "profiles", map[string]string{"id": userID}, changes)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(row, &p); err != nil {
		return nil, fmt.Errorf("store: decode profile: %w", err)
	}
	return &p, nil
}

// OwnerEmail resolves the notification address for a task owner. The
// auth admin API is authoritative; the profiles table is the fallback
// when the admin lookup fails.
func (c *Client) OwnerEmail(ctx context.Context, ownerID string) (string, error) {
	if user, err := c.AdminGetUser(ctx, ownerID); err == nil && user.Email != "" {
		return user.Email, nil
	}
	profile, err := c.GetProfile(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("store: resolve email for %s: %w", ownerID, err)
	}
	return profile.Email, nil
}

// ListProfiles returns profile rows for the admin user listing,
// newest first.
func (c *Client) ListProfiles(ctx context.Context, limit, offset int) ([]Profile, error) {
	rows, err := c.Query(ctx, "profiles", QueryOptions{
		Order:  "created_at.desc",
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}
	profiles := make([]Profile, 0, len(rows))
	for _, row := range rows {
		var p Profile
		if err := json.Unmarshal(row, &p); err != nil {
			return nil, fmt.Errorf("store: decode profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// doAuthUser executes an auth request that returns {user: {...}} or a
// bare user object, surfacing the service's error message on failure.
func (c *Client) doAuthUser(req *http.Request) (*AuthUser, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store: auth request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var envelope struct {
		User *AuthUser `json:"user"`
		AuthUser
		authError
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("store: decode auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("store: auth failed (status %d): %s", resp.StatusCode, envelope.text())
	}
	if envelope.User != nil {
		return envelope.User, nil
	}
	if envelope.ID != "" {
		return &envelope.AuthUser, nil
	}
	return nil, fmt.Errorf("store: auth response missing user")
}
