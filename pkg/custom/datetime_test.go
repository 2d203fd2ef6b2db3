package custom

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDatetimeJSON(t *testing.T) {
	type wrapper struct {
		At Datetime `json:"at"`
	}

	at := Datetime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	b, err := json.Marshal(wrapper{At: at})
	require.NoError(t, err)
	require.Equal(t, `{"at":"2024-01-02T03:04:05Z"}`, string(b))

	var got wrapper
	require.NoError(t, json.Unmarshal(b, &got))
	require.True(t, got.At.Time().Equal(at.Time()))

	b, err = json.Marshal(wrapper{})
	require.NoError(t, err)
	require.Equal(t, `{"at":null}`, string(b))

	got = wrapper{}
	require.NoError(t, json.Unmarshal(b, &got))
	require.True(t, got.At.IsZero())

	require.Error(t, json.Unmarshal([]byte(`{"at":"yesterday"}`), &got))
}

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "0m"},
		{"minutes", 42 * time.Minute, "42m"},
		{"hours", 2*time.Hour + 5*time.Minute, "2h 5m"},
		{"exact hour", time.Hour, "1h 0m"},
		{"negative", -time.Minute, "0m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, HumanDuration(tt.d))
		})
	}
}
