package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/imi-ownership/internal/ledger"
)

func respond(err error) (*httptest.ResponseRecorder, APIResponse) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/test", nil)
	LedgerErrorResponse(c, err)

	var body APIResponse
	json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestLedgerErrorResponse(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", ledger.NewValidationError("share_bps", "must be positive"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"asset not found", fmt.Errorf("load: %w", ledger.ErrAssetNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"ownership not found", ledger.ErrOwnershipNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"insufficient", &ledger.InsufficientOwnershipError{AssetID: uuid.New(), CreatorID: uuid.New(), Requested: 10, Available: 5}, http.StatusConflict, "INSUFFICIENT_OWNERSHIP"},
		{"invariant", &ledger.InvariantViolationError{Violations: []ledger.Violation{{Kind: ledger.ViolationConservation, Start: &start, Observed: 9000, Expected: 10000}}}, http.StatusConflict, "INVARIANT_VIOLATION"},
		{"retries exhausted", &ledger.ConflictError{Reason: "gave up", Err: ledger.ErrConcurrentModification}, http.StatusConflict, "CONFLICT"},
		{"concurrent", ledger.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
		{"internal", &ledger.InternalInvariantError{Operation: "split"}, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := respond(tc.err)
			assert.Equal(t, tc.status, w.Code)
			require.NotNil(t, body.Error)
			assert.Equal(t, tc.code, body.Error.Code)
			assert.False(t, body.Success)
		})
	}
}

func TestLedgerErrorResponse_InvariantDetails(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, body := respond(&ledger.InvariantViolationError{Violations: []ledger.Violation{{Kind: ledger.ViolationConservation, Start: &start, Observed: 9000, Expected: 10000}}})

	details, ok := body.Error.Details.([]interface{})
	require.True(t, ok)
	require.Len(t, details, 1)
	first := details[0].(map[string]interface{})
	assert.Equal(t, float64(9000), first["observed"])
	assert.Equal(t, "conservation", first["kind"])
}

func TestValidateStruct_Bps(t *testing.T) {
	type req struct {
		ShareBps int `validate:"bps"`
	}
	assert.NoError(t, ValidateStruct(req{ShareBps: 1}))
	assert.NoError(t, ValidateStruct(req{ShareBps: 10000}))

	err := ValidateStruct(req{ShareBps: 0})
	require.Error(t, err)
	errs := GetValidationErrors(err)
	require.Len(t, errs, 1)
	assert.Equal(t, "bps", errs[0].Tag)
	assert.Error(t, ValidateStruct(req{ShareBps: 10001}))
}

func TestJWTRoundTrip(t *testing.T) {
	SetJWTConfig("test-secret", "test-issuer")
	id := uuid.New()

	token, err := GenerateJWT(id, UserTypeAdmin, 1)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, id.String(), claims.UserID)
	assert.Equal(t, UserTypeAdmin, claims.UserType)

	SetJWTConfig("other-secret", "test-issuer")
	_, err = ValidateJWT(token)
	assert.Error(t, err)
}
