package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
	prefdomain "github.com/lynqchat/golang_services/internal/preference_service/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapDomainErrorToHTTPStatus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"Validation", &domain.ValidationError{Field: "chat_id", Reason: "is required"}, http.StatusBadRequest},
		{"Preference", fmt.Errorf("%w: too long", prefdomain.ErrInvalidPreference), http.StatusBadRequest},
		{"NotFound", domain.ErrNotFound, http.StatusNotFound},
		{"SelfRead", domain.ErrSelfRead, http.StatusForbidden},
		{"Blob", &domain.BlobError{Op: "put", Ref: "media/1_a.png", Err: errors.New("timeout")}, http.StatusBadGateway},
		{"Store", &domain.StoreError{Op: "create", Err: errors.New("down")}, http.StatusInternalServerError},
		{"Unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			mapDomainErrorToHTTPStatus(rr, logger, tt.err, "test")
			assert.Equal(t, tt.want, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Contains(t, rr.Body.String(), `"error"`)
		})
	}
}

func TestToMessageResponse(t *testing.T) {
	size := int64(1536)
	resp := toMessageResponse(&domain.Message{
		ID:       "m1",
		Type:     domain.MessageTypeDocument,
		Content:  "memory://blobs/media/1_report.pdf",
		Metadata: domain.Metadata{Name: "report.pdf", Size: &size},
	})
	assert.Empty(t, resp.Text)
	if assert.NotNil(t, resp.Metadata) {
		assert.Equal(t, "1.5 KB", resp.Metadata.SizeFormatted)
	}

	text := toMessageResponse(&domain.Message{Type: domain.MessageTypeText, Content: domain.EncodeText("hi")})
	assert.Equal(t, "hi", text.Text)
	assert.Nil(t, text.Metadata)
}
