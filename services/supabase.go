package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aitector/aitector/config"
	"github.com/aitector/aitector/models"
)

// SupabaseService talks to the hosted auth (GoTrue) and table (PostgREST)
// endpoints with the privileged service key.
type SupabaseService struct {
	BaseURL    string
	ServiceKey string
	Client     *http.Client
}

func NewSupabaseService(cfg *config.Config) *SupabaseService {
	return &SupabaseService{
		BaseURL:    strings.TrimRight(cfg.SupabaseURL, "/"),
		ServiceKey: cfg.SupabaseServiceKey,
		Client:     &http.Client{Timeout: cfg.UpstreamTimeout},
	}
}

const usageColumns = "api_key_id,action,elapsed_time,flagged,success,risk,iterations,created_at"

func (s *SupabaseService) ResolveUser(ctx context.Context, token string) (*AuthUser, error) {
	if token == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil, nil // Token rejected
	default:
		return nil, decodeAPIError(resp)
	}

	var user AuthUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode auth user: %w", err)
	}
	if user.ID == "" {
		return nil, nil
	}
	return &user, nil
}

func (s *SupabaseService) UpsertUser(ctx context.Context, user models.User) (*models.User, error) {
	q := url.Values{}
	q.Set("on_conflict", "id")

	var rows []models.User
	if _, err := s.rest(ctx, http.MethodPost, "users", q, []models.User{user}, "resolution=merge-duplicates,return=representation", &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("upsert users returned no rows")
	}
	return &rows[0], nil
}

func (s *SupabaseService) InsertAPIKey(ctx context.Context, userID, keyHash string) (*models.APIKeyRow, error) {
	q := url.Values{}
	q.Set("select", "id,usage_count,created_at")

	payload := []map[string]string{{"user_id": userID, "key_hash": keyHash}}
	var rows []models.APIKeyRow
	if _, err := s.rest(ctx, http.MethodPost, "api_keys", q, payload, "return=representation", &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert api_keys returned no rows")
	}
	return &rows[0], nil
}

func (s *SupabaseService) ListAPIKeys(ctx context.Context, userID string) ([]models.APIKeyRow, error) {
	q := url.Values{}
	q.Set("select", "id,usage_count,created_at")
	q.Set("user_id", "eq."+userID)
	q.Set("order", "created_at.desc")

	rows := []models.APIKeyRow{}
	if _, err := s.rest(ctx, http.MethodGet, "api_keys", q, nil, "", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *SupabaseService) CountAPIKeys(ctx context.Context, userID string) (int64, error) {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("user_id", "eq."+userID)
	return s.count(ctx, "api_keys", q)
}

func (s *SupabaseService) GetAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	q := url.Values{}
	q.Set("select", "id,user_id,usage_count,created_at")
	q.Set("id", "eq."+id)

	var rows []models.APIKey
	if _, err := s.rest(ctx, http.MethodGet, "api_keys", q, nil, "", &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (s *SupabaseService) DeleteAPIKey(ctx context.Context, id string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("select", "id")

	var rows []struct {
		ID string `json:"id"`
	}
	if _, err := s.rest(ctx, http.MethodDelete, "api_keys", q, nil, "return=representation", &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SupabaseService) CountUsage(ctx context.Context, keyID string) (int64, error) {
	q := url.Values{}
	q.Set("select", "api_key_id")
	q.Set("api_key_id", "eq."+keyID)
	return s.count(ctx, "api_usage", q)
}

func (s *SupabaseService) LastUsedAt(ctx context.Context, keyID string) (*time.Time, error) {
	q := url.Values{}
	q.Set("select", "created_at")
	q.Set("api_key_id", "eq."+keyID)
	q.Set("order", "created_at.desc")
	q.Set("limit", "1")

	var rows []struct {
		CreatedAt time.Time `json:"created_at"`
	}
	if _, err := s.rest(ctx, http.MethodGet, "api_usage", q, nil, "", &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0].CreatedAt, nil
}

func (s *SupabaseService) ListUsage(ctx context.Context, keyID string) ([]models.APIUsage, error) {
	q := url.Values{}
	q.Set("select", usageColumns)
	q.Set("api_key_id", "eq."+keyID)

	rows := []models.APIUsage{}
	if _, err := s.rest(ctx, http.MethodGet, "api_usage", q, nil, "", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *SupabaseService) count(ctx context.Context, table string, q url.Values) (int64, error) {
	header, err := s.rest(ctx, http.MethodHead, table, q, nil, "count=exact", nil)
	if err != nil {
		return 0, err
	}
	return parseContentRangeTotal(header.Get("Content-Range"))
}

func (s *SupabaseService) rest(ctx context.Context, method, table string, query url.Values, payload interface{}, prefer string, out interface{}) (http.Header, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", s.BaseURL, table)
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	s.setAuth(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}

	if out != nil && method != http.MethodHead && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", table, err)
		}
	}
	return resp.Header, nil
}

func (s *SupabaseService) setAuth(req *http.Request) {
	req.Header.Set("apikey", s.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+s.ServiceKey)
}

func decodeAPIError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Code             interface{} `json:"code"`
		Message          string      `json:"message"`
		Msg              string      `json:"msg"`
		ErrorDescription string      `json:"error_description"`
		Details          string      `json:"details"`
		Hint             string      `json:"hint"`
	}
	if err := json.Unmarshal(bodyBytes, &payload); err == nil {
		if payload.Code != nil {
			apiErr.Code = fmt.Sprint(payload.Code)
		}
		apiErr.Details = payload.Details
		apiErr.Hint = payload.Hint
		for _, m := range []string{payload.Message, payload.Msg, payload.ErrorDescription} {
			if m != "" {
				apiErr.Message = m
				break
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(bodyBytes))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// parseContentRangeTotal reads the total from "0-24/42" or "*/0".
func parseContentRangeTotal(v string) (int64, error) {
	i := strings.LastIndex(v, "/")
	if i < 0 || i == len(v)-1 {
		return 0, fmt.Errorf("missing total in content-range %q", v)
	}
	total := v[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("content-range %q has no exact count", v)
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid content-range %q: %w", v, err)
	}
	return n, nil
}
