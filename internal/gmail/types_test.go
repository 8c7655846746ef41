package gmail

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestClampCount(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, DefaultListCount},
		{-3, DefaultListCount},
		{1, 1},
		{20, 20},
		{50, 50},
		{100, 50},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, ClampCount(tt.in))
		})
	}
}

func TestNewFetchError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"unauthorized", &googleapi.Error{Code: http.StatusUnauthorized}, KindUnauthenticated},
		{"wrapped unauthorized", fmt.Errorf("call: %w", &googleapi.Error{Code: http.StatusUnauthorized}), KindUnauthenticated},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden}, KindUpstream},
		{"server error", &googleapi.Error{Code: http.StatusInternalServerError}, KindUpstream},
		{"transport", errors.New("connection reset"), KindUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := newFetchError("list", tt.err)
			assert.Equal(t, tt.want, fe.Kind)
			assert.ErrorIs(t, fe, tt.err)
			assert.Equal(t, tt.want == KindUnauthenticated, IsUnauthenticated(fe))
			assert.Contains(t, fe.Error(), tt.want.String())
		})
	}

	assert.False(t, IsUnauthenticated(errors.New("plain")))
}
