package response

import (
	"Parley/internal/pkg/media"
	"Parley/internal/service"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"not found", service.ErrMessageNotFound, http.StatusNotFound, service.ErrMessageNotFound.Error()},
		{"forbidden", service.ErrNotReceiver, http.StatusForbidden, service.ErrNotReceiver.Error()},
		{"too large", media.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, media.ErrPayloadTooLarge.Error()},
		{"wrapped validation", fmt.Errorf("%w: x", service.ErrParamInvalid), http.StatusBadRequest, "参数错误: x"},
		{"persistence hides cause", fmt.Errorf("%w: %w", service.ErrPersistence, errors.New("dial tcp")), http.StatusInternalServerError, service.ErrPersistence.Error()},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, service.UnExpectedError.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			Error(c, tt.err)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"success":false,"code":%d,"message":%q}`, tt.wantCode, tt.wantBody), w.Body.String())
		})
	}
}
