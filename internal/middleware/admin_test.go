package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubAdminStore struct {
	isAdminFn func(ctx context.Context, userID int64) (bool, bool, error)
	hasRoleFn func(ctx context.Context, userID int64, role string) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID int64) (bool, bool, error) {
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID int64, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func admins(isAdmin, isSuper bool, roles ...string) stubAdminStore {
	return stubAdminStore{
		isAdminFn: func(context.Context, int64) (bool, bool, error) {
			return isAdmin, isSuper, nil
		},
		hasRoleFn: func(_ context.Context, _ int64, role string) (bool, error) {
			for _, r := range roles {
				if r == role {
					return true, nil
				}
			}
			return false, nil
		},
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name     string
		store    stubAdminStore
		role     string
		userID   int64
		wantCode int
		wantErr  string
	}{
		{name: "anonymous", store: admins(true, true), role: "CanSettle", wantCode: http.StatusUnauthorized, wantErr: "unauthorized"},
		{name: "not admin", store: admins(false, false), role: "CanSettle", userID: 3, wantCode: http.StatusForbidden, wantErr: "admin_required"},
		{name: "super admin", store: admins(true, true), role: "CanSettle", userID: 1, wantCode: http.StatusOK},
		{name: "missing role", store: admins(true, false, "CanReviewFunds"), role: "CanSettle", userID: 2, wantCode: http.StatusForbidden, wantErr: "role_required"},
		{name: "granted role", store: admins(true, false, "CanSettle"), role: "CanSettle", userID: 2, wantCode: http.StatusOK},
		{name: "any admin", store: admins(true, false), role: "", userID: 2, wantCode: http.StatusOK},
		{
			name: "store failure",
			store: stubAdminStore{isAdminFn: func(context.Context, int64) (bool, bool, error) {
				return false, false, errors.New("db down")
			}},
			role:     "CanSettle",
			userID:   2,
			wantCode: http.StatusInternalServerError,
			wantErr:  "admin_check_failed",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := RequireAdmin(tc.store, tc.role)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/admin/stocks", nil)
			if tc.userID > 0 {
				req = req.WithContext(WithUserID(req.Context(), tc.userID))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			if tc.wantErr == "" {
				return
			}
			var body map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error"] != tc.wantErr {
				t.Fatalf("expected %q, got %q", tc.wantErr, body["error"])
			}
		})
	}
}

func TestRequireAdminSkipsRoleLookupForAnyAdmin(t *testing.T) {
	store := stubAdminStore{
		isAdminFn: func(context.Context, int64) (bool, bool, error) { return true, false, nil },
		hasRoleFn: func(context.Context, int64, string) (bool, error) {
			t.Fatalf("role lookup not expected")
			return false, nil
		},
	}
	handler := RequireAdmin(store, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	req = req.WithContext(WithUserID(req.Context(), 7))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}
