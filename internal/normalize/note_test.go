package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JunJD/xiuer-spider/internal/crawler"
)

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time { return c.now }

var shanghai = time.FixedZone("CST", 8*3600)

func fixedNow() time.Time {
	return time.Date(2025, time.March, 10, 15, 30, 0, 0, shanghai)
}

func decodeRaw(t *testing.T, doc string) crawler.RawItem {
	t.Helper()
	var raw crawler.RawItem
	require.NoError(t, json.Unmarshal([]byte(doc), &raw))
	return raw
}

const searchItem = `{
  "id": "64f1a2b3c4d5e6f7a8b9c0d1",
  "model_type": "note",
  "xsec_token": "ABtoken=",
  "note_card": {
    "type": "normal",
    "display_title": "周末探店 #咖啡[话题]# #拿铁 #咖啡",
    "user": {"user_id": "u-1", "nick_name": "豆豆", "avatar": "https://img/avatar.jpg"},
    "interact_info": {"liked_count": "1024", "collected_count": 33, "comment_count": "abc", "shared_count": ""},
    "image_list": [
      {"info_list": [{"image_scene": "WB_PRV", "url": "https://img/1-prv"}, {"image_scene": "WB_DFT", "url": "https://img/1-dft"}, {"image_scene": "WB_DFT", "url": "https://img/1-dup"}]},
      {"info_list": [{"image_scene": "WB_PRV", "url": "https://img/2-prv"}]},
      {"info_list": [{"image_scene": "WB_DFT", "url": "https://img/3-dft"}]}
    ],
    "corner_tag_info": [
      {"type": "publish_time", "text": "2小时前"},
      {"type": "location", "text": "上海"},
      {"type": "location", "text": "上海"}
    ]
  }
}`

func TestNoteNormalizesSearchItem(t *testing.T) {
	t.Parallel()

	n := NewNoteNormalizer(fakeClock{now: fixedNow()}, "")
	rec, err := n.Note(decodeRaw(t, searchItem))
	require.NoError(t, err)

	require.Equal(t, "64f1a2b3c4d5e6f7a8b9c0d1", rec.NoteID)
	require.Equal(t, "https://www.xiaohongshu.com/explore/64f1a2b3c4d5e6f7a8b9c0d1?xsec_token=ABtoken=", rec.URL)
	require.Equal(t, "ABtoken=", rec.XsecToken)
	require.Equal(t, crawler.NoteTypeNormal, rec.Type)
	require.Equal(t, "u-1", *rec.Author.UserID)
	require.Equal(t, "豆豆", *rec.Author.Nickname, "nickname falls back to nick_name")
	require.Equal(t, "https://img/avatar.jpg", *rec.Author.Avatar)
	require.Nil(t, rec.Description)
	require.Equal(t, crawler.Interactions{Liked: 1024, Collected: 33}, rec.Interactions)
	require.Equal(t, []string{"https://img/1-dft", "https://img/3-dft"}, rec.Media.ImageList)
	require.Nil(t, rec.Media.VideoCover)
	require.Nil(t, rec.Media.VideoAddress)
	require.ElementsMatch(t, []string{"上海", "咖啡", "拿铁"}, rec.Tags)
	require.NotNil(t, rec.UploadTime)
	require.True(t, rec.UploadTime.Equal(fixedNow().Add(-2*time.Hour)))
}

func TestNoteWithoutInteractionsDefaultsToZero(t *testing.T) {
	t.Parallel()

	n := NewNoteNormalizer(fakeClock{now: fixedNow()}, "")
	rec, err := n.Note(crawler.RawItem{
		"id":        "n1",
		"note_card": map[string]any{"display_title": "no counters"},
	})
	require.NoError(t, err)
	require.Equal(t, crawler.Interactions{}, rec.Interactions)
	require.Equal(t, []string{}, rec.Tags)
	require.Equal(t, []string{}, rec.Media.ImageList)
	require.Nil(t, rec.UploadTime)
	require.Nil(t, rec.Author.UserID)
}

func TestNoteDegradesMissingCard(t *testing.T) {
	t.Parallel()

	n := NewNoteNormalizer(fakeClock{now: fixedNow()}, "")
	rec, err := n.Note(crawler.RawItem{"xsec_token": 42})

	var normErr *NormalizationError
	require.ErrorAs(t, err, &normErr)
	require.Equal(t, []string{"id", "note_card"}, normErr.Fields)
	require.Contains(t, err.Error(), "<unknown>")
	require.Equal(t, crawler.NoteTypeNormal, rec.Type)
	require.Nil(t, rec.Title)
	require.Equal(t, "42", rec.XsecToken)
}

func TestNoteVideoMedia(t *testing.T) {
	t.Parallel()

	n := NewNoteNormalizer(fakeClock{now: fixedNow()}, "")
	rec, err := n.Note(decodeRaw(t, `{
	  "id": "v1",
	  "note_card": {
	    "type": "video",
	    "user": {"nickname": "primary", "nick_name": "fallback"},
	    "cover": {"url_default": "https://img/cover"},
	    "video": {"media": {"stream": {"h264": [{"master_url": "https://video/v1.mp4"}]}}},
	    "corner_tag_info": [{"type": "publish_time", "text": "01-15"}]
	  }
	}`))
	require.NoError(t, err)
	require.Equal(t, crawler.NoteTypeVideo, rec.Type)
	require.Equal(t, "primary", *rec.Author.Nickname)
	require.Equal(t, "https://img/cover", *rec.Media.VideoCover)
	require.Equal(t, "https://video/v1.mp4", *rec.Media.VideoAddress)
	require.Equal(t, time.Date(2025, time.January, 15, 0, 0, 0, 0, shanghai), *rec.UploadTime)
}

func TestNoteNonVideoIgnoresVideoFields(t *testing.T) {
	t.Parallel()

	n := NewNoteNormalizer(fakeClock{now: fixedNow()}, "")
	rec, _ := n.Note(crawler.RawItem{
		"id": "x",
		"note_card": map[string]any{
			"type":  "normal",
			"cover": map[string]any{"url_default": "https://img/cover"},
		},
	})
	require.Nil(t, rec.Media.VideoCover)
}

func TestNoteUnrecognizedPublishTag(t *testing.T) {
	t.Parallel()

	n := NewNoteNormalizer(fakeClock{now: fixedNow()}, "")
	rec, err := n.Note(crawler.RawItem{
		"id": "x",
		"note_card": map[string]any{
			"corner_tag_info": []any{map[string]any{"type": "publish_time", "text": "昨天 18:20"}},
		},
	})
	require.NoError(t, err)
	require.Nil(t, rec.UploadTime)
}

func TestNoteIsIdempotent(t *testing.T) {
	t.Parallel()

	n := NewNoteNormalizer(fakeClock{now: fixedNow()}, "")
	a, errA := n.Note(decodeRaw(t, searchItem))
	b, errB := n.Note(decodeRaw(t, searchItem))
	require.NoError(t, errA)
	require.NoError(t, errB)

	first, err := json.Marshal(a)
	require.NoError(t, err)
	second, err := json.Marshal(b)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestNoteCustomImageScene(t *testing.T) {
	t.Parallel()

	n := NewNoteNormalizer(fakeClock{now: fixedNow()}, "WB_PRV")
	rec, _ := n.Note(decodeRaw(t, searchItem))
	require.Equal(t, []string{"https://img/1-prv", "https://img/2-prv"}, rec.Media.ImageList)
}

const detailItem = `{
  "id": "64f1a2b3c4d5e6f7a8b9c0d1",
  "note_card": {
    "type": "normal",
    "title": "周末探店",
    "desc": "手冲很好喝 #手冲",
    "time": 1735689600000,
    "ip_location": "浙江",
    "user": {"user_id": "u-1", "nickname": "豆豆"},
    "interact_info": {"liked_count": "2000", "collected_count": "40", "comment_count": "12", "share_count": "3"},
    "tag_list": [{"name": "咖啡"}, {"name": "探店"}],
    "image_list": [{"info_list": [{"image_scene": "WB_DFT", "url": "https://img/d1"}]}]
  }
}`

func TestDetailAddsRichFields(t *testing.T) {
	t.Parallel()

	n := NewNoteNormalizer(fakeClock{now: fixedNow()}, "")
	rec, err := n.Detail(decodeRaw(t, detailItem))
	require.NoError(t, err)
	require.Equal(t, "手冲很好喝 #手冲", *rec.Description)
	require.Equal(t, "浙江", *rec.Location)
	require.Equal(t, crawler.Interactions{Liked: 2000, Collected: 40, Commented: 12, Shared: 3}, rec.Interactions)
	require.Equal(t, []string{"咖啡", "探店", "手冲"}, rec.Tags)
	require.True(t, rec.UploadTime.Equal(time.UnixMilli(1735689600000)))
	require.Equal(t, []string{"https://img/d1"}, rec.Media.ImageList)
}

func TestMergeKeepsSearchIdentity(t *testing.T) {
	t.Parallel()

	n := NewNoteNormalizer(fakeClock{now: fixedNow()}, "")
	base, err := n.Note(decodeRaw(t, searchItem))
	require.NoError(t, err)
	detail, err := n.Detail(crawler.RawItem{"note_card": map[string]any{"desc": "more text"}})
	require.Error(t, err)

	merged := Merge(base, detail)
	require.Equal(t, base.NoteID, merged.NoteID)
	require.Equal(t, base.URL, merged.URL)
	require.Equal(t, "more text", *merged.Description)
	require.Equal(t, base.Interactions, merged.Interactions)
	require.Equal(t, base.Media.ImageList, merged.Media.ImageList)
	require.Equal(t, base.Author, merged.Author)
	require.ElementsMatch(t, base.Tags, merged.Tags)
}
