package crawler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSortMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    SortMode
		wantErr bool
	}{
		{in: "", want: SortComprehensive},
		{in: "0", want: SortComprehensive},
		{in: "latest", want: SortLatest},
		{in: " Most_Liked ", want: SortMostLiked},
		{in: "3", want: SortMostCommented},
		{in: "most_collected", want: SortMostCollected},
		{in: "5", wantErr: true},
		{in: "hottest", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSortMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSortModeCodesAreStable(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, SortComprehensive.Code())
	require.Equal(t, 1, SortLatest.Code())
	require.Equal(t, 2, SortMostLiked.Code())
	require.Equal(t, 3, SortMostCommented.Code())
	require.Equal(t, 4, SortMostCollected.Code())
	require.Equal(t, "time_descending", SortLatest.UpstreamValue())
	require.Equal(t, "general", SortMode(9).UpstreamValue())
	require.Equal(t, "sort_mode(9)", SortMode(9).String())
}

func TestSortModeJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(struct {
		Sort SortMode `json:"sort_type"`
	}{Sort: SortMostLiked})
	require.NoError(t, err)
	require.JSONEq(t, `{"sort_type":2}`, string(data))

	var byName SortMode
	require.NoError(t, json.Unmarshal([]byte(`"latest"`), &byName))
	require.Equal(t, SortLatest, byName)

	var bad SortMode
	require.Error(t, json.Unmarshal([]byte(`7`), &bad))
}

func TestRunStatusTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, RunStatusStarted.Terminal())
	require.False(t, RunStatusProgress.Terminal())
	require.True(t, RunStatusCompleted.Terminal())
	require.True(t, RunStatusSuccess.Terminal())
	require.True(t, RunStatusFailed.Terminal())
	require.False(t, RunStatus("paused").Valid())
}

func TestNoteURL(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"https://www.xiaohongshu.com/explore/abc123?xsec_token=tok",
		NoteURL("abc123", "tok"),
	)
}
