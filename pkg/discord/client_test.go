package discord

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/stretchr/testify/require"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{
			name: "status 404",
			err:  &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}},
			want: true,
		},
		{
			name: "unknown message code",
			err: fmt.Errorf("wrapped: %w", &discordgo.RESTError{
				Response: &http.Response{StatusCode: http.StatusBadRequest},
				Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMessage},
			}),
			want: true,
		},
		{
			name: "forbidden",
			err: &discordgo.RESTError{
				Response: &http.Response{StatusCode: http.StatusForbidden},
				Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingAccess},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsNotFound(tt.err))
		})
	}
}

func TestHasPermission(t *testing.T) {
	require.True(t, HasPermission(discordgo.PermissionAdministrator, discordgo.PermissionManageChannels))
	require.True(t, HasPermission(discordgo.PermissionManageChannels|discordgo.PermissionViewChannel, discordgo.PermissionManageChannels))
	require.False(t, HasPermission(discordgo.PermissionViewChannel, discordgo.PermissionManageChannels))
}

func TestHasRole(t *testing.T) {
	m := &discordgo.Member{Roles: []string{"a", "b"}}
	require.True(t, HasRole(m, "b"))
	require.False(t, HasRole(m, "c"))
	require.False(t, HasRole(nil, "a"))
}
