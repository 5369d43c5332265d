package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/JunJD/xiuer-spider/internal/crawler"
)

// DefaultImageScene is the image variant kept for each picture.
const DefaultImageScene = "WB_DFT"

// publishTimeTag is the corner tag type that carries the relative publish time.
const publishTimeTag = "publish_time"

var hashtagPattern = regexp.MustCompile(`#([^\s#]+)`)

// NormalizationError lists the fields that could not be derived for an item.
// The accompanying record is still usable.
type NormalizationError struct {
	NoteID string
	Fields []string
}

func (e *NormalizationError) Error() string {
	id := e.NoteID
	if id == "" {
		id = "<unknown>"
	}
	return fmt.Sprintf("normalize note %s: missing %s", id, strings.Join(e.Fields, ", "))
}

// NoteNormalizer turns raw search items and detail cards into NoteRecords.
type NoteNormalizer struct {
	clock      crawler.Clock
	imageScene string
}

// NewNoteNormalizer builds a normalizer whose relative times are resolved
// against clock. An empty imageScene selects DefaultImageScene.
func NewNoteNormalizer(clock crawler.Clock, imageScene string) *NoteNormalizer {
	if imageScene == "" {
		imageScene = DefaultImageScene
	}
	return &NoteNormalizer{clock: clock, imageScene: imageScene}
}

// Note normalizes one search result item. The record is always returned; a
// non-nil error describes what had to be degraded.
func (n *NoteNormalizer) Note(raw crawler.RawItem) (crawler.NoteRecord, error) {
	var missing []string
	noteID, ok := first(raw, "id", "note_id")
	if !ok {
		missing = append(missing, "id")
	}
	token, _ := String(raw["xsec_token"])
	card, ok := Map(raw["note_card"])
	if !ok {
		missing = append(missing, "note_card")
		card = map[string]any{}
	}

	title := optional(first(card, "display_title", "title"))
	rec := crawler.NoteRecord{
		NoteID:       noteID,
		URL:          crawler.NoteURL(noteID, token),
		Type:         noteType(card),
		Author:       author(card["user"]),
		Title:        title,
		Description:  nil,
		Tags:         n.searchTags(card, title),
		UploadTime:   n.publishTime(card),
		Location:     optional(String(card["ip_location"])),
		Interactions: interactions(card["interact_info"]),
		XsecToken:    token,
	}
	rec.Media = n.media(card, rec.Type)
	if len(missing) > 0 {
		return rec, &NormalizationError{NoteID: noteID, Fields: missing}
	}
	return rec, nil
}

// Detail normalizes a detail payload with the same field rules, adding the
// fields only a detail card carries: description, exact publish time, tag list
// and video stream.
func (n *NoteNormalizer) Detail(raw crawler.RawItem) (crawler.NoteRecord, error) {
	var missing []string
	card, ok := Map(raw["note_card"])
	if !ok {
		card = raw
	}
	noteID, ok := first(raw, "id", "note_id")
	if !ok {
		if noteID, ok = first(card, "note_id", "id"); !ok {
			missing = append(missing, "id")
		}
	}
	token, ok := String(raw["xsec_token"])
	if !ok {
		token, _ = String(card["xsec_token"])
	}

	title := optional(first(card, "title", "display_title"))
	desc := optional(String(card["desc"]))
	rec := crawler.NoteRecord{
		NoteID:       noteID,
		URL:          crawler.NoteURL(noteID, token),
		Type:         noteType(card),
		Author:       author(card["user"]),
		Title:        title,
		Description:  desc,
		Tags:         detailTags(card, title, desc),
		Location:     optional(String(card["ip_location"])),
		Interactions: interactions(card["interact_info"]),
		XsecToken:    token,
	}
	if t, ok := ParseEpoch(card["time"], n.location()); ok {
		rec.UploadTime = &t
	} else {
		rec.UploadTime = n.publishTime(card)
	}
	rec.Media = n.media(card, rec.Type)
	if len(missing) > 0 {
		return rec, &NormalizationError{NoteID: noteID, Fields: missing}
	}
	return rec, nil
}

// Merge overlays the non-empty fields of detail onto base. Identity fields
// from base win so the note keeps its search-time URL and token.
func Merge(base, detail crawler.NoteRecord) crawler.NoteRecord {
	out := detail
	out.NoteID = base.NoteID
	out.URL = base.URL
	out.XsecToken = base.XsecToken
	if out.Author.UserID == nil {
		out.Author.UserID = base.Author.UserID
	}
	if out.Author.Nickname == nil {
		out.Author.Nickname = base.Author.Nickname
	}
	if out.Author.Avatar == nil {
		out.Author.Avatar = base.Author.Avatar
	}
	if out.Title == nil {
		out.Title = base.Title
	}
	if out.UploadTime == nil {
		out.UploadTime = base.UploadTime
	}
	if out.Location == nil {
		out.Location = base.Location
	}
	if out.Interactions == (crawler.Interactions{}) {
		out.Interactions = base.Interactions
	}
	if len(out.Media.ImageList) == 0 {
		out.Media.ImageList = base.Media.ImageList
	}
	if out.Media.VideoCover == nil {
		out.Media.VideoCover = base.Media.VideoCover
	}
	out.Tags = dedupe(append(append([]string{}, out.Tags...), base.Tags...))
	return out
}

func (n *NoteNormalizer) location() *time.Location {
	return n.clock.Now().Location()
}

func noteType(card map[string]any) crawler.NoteType {
	if t, _ := String(card["type"]); t == string(crawler.NoteTypeVideo) {
		return crawler.NoteTypeVideo
	}
	return crawler.NoteTypeNormal
}

func author(v any) crawler.Author {
	user, ok := Map(v)
	if !ok {
		return crawler.Author{}
	}
	return crawler.Author{
		UserID:   optional(String(user["user_id"])),
		Nickname: optional(first(user, "nickname", "nick_name")),
		Avatar:   optional(first(user, "avatar", "image")),
	}
}

func interactions(v any) crawler.Interactions {
	info, ok := Map(v)
	if !ok {
		return crawler.Interactions{}
	}
	shared := Count(info["shared_count"])
	if shared == 0 {
		shared = Count(info["share_count"])
	}
	return crawler.Interactions{
		Liked:     Count(info["liked_count"]),
		Collected: Count(info["collected_count"]),
		Commented: Count(info["comment_count"]),
		Shared:    shared,
	}
}

// images keeps, per picture, the first variant whose scene matches.
func (n *NoteNormalizer) images(card map[string]any) []string {
	out := []string{}
	for _, img := range objects(card["image_list"]) {
		for _, variant := range objects(img["info_list"]) {
			scene, _ := String(variant["image_scene"])
			if scene != n.imageScene {
				continue
			}
			if url, ok := String(variant["url"]); ok {
				out = append(out, url)
			}
			break
		}
	}
	return out
}

func (n *NoteNormalizer) media(card map[string]any, typ crawler.NoteType) crawler.Media {
	m := crawler.Media{ImageList: n.images(card)}
	if typ != crawler.NoteTypeVideo {
		return m
	}
	if cover, ok := Map(card["cover"]); ok {
		m.VideoCover = optional(first(cover, "url_default", "url"))
	}
	if streams, ok := Path(card, "video", "media", "stream", "h264"); ok {
		for _, s := range objects(streams) {
			if addr, ok := first(s, "master_url", "url"); ok {
				m.VideoAddress = &addr
				break
			}
		}
	}
	return m
}

func (n *NoteNormalizer) searchTags(card map[string]any, title *string) []string {
	var tags []string
	for _, tag := range objects(card["corner_tag_info"]) {
		if typ, _ := String(tag["type"]); typ == publishTimeTag {
			continue
		}
		if text, ok := String(tag["text"]); ok {
			tags = append(tags, text)
		}
	}
	if title != nil {
		tags = append(tags, hashtags(*title)...)
	}
	return dedupe(tags)
}

func detailTags(card map[string]any, title, desc *string) []string {
	var tags []string
	for _, tag := range objects(card["tag_list"]) {
		if name, ok := String(tag["name"]); ok {
			tags = append(tags, name)
		}
	}
	if title != nil {
		tags = append(tags, hashtags(*title)...)
	}
	if desc != nil {
		tags = append(tags, hashtags(*desc)...)
	}
	return dedupe(tags)
}

func (n *NoteNormalizer) publishTime(card map[string]any) *time.Time {
	for _, tag := range objects(card["corner_tag_info"]) {
		if typ, _ := String(tag["type"]); typ != publishTimeTag {
			continue
		}
		text, _ := String(tag["text"])
		t, ok := ParsePublishTime(text, n.clock.Now())
		if !ok {
			return nil
		}
		return &t
	}
	return nil
}

// hashtags extracts "#topic" tokens, dropping the "[话题]" marker the
// platform appends to linked topics.
func hashtags(text string) []string {
	var out []string
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		tag := strings.TrimSuffix(m[1], "[话题]")
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
