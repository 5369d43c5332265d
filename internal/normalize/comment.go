package normalize

import (
	"time"

	"github.com/JunJD/xiuer-spider/internal/crawler"
)

// CommentNormalizer turns raw comments into CommentRecords.
type CommentNormalizer struct {
	loc *time.Location
}

// NewCommentNormalizer builds a normalizer that renders times in loc.
func NewCommentNormalizer(loc *time.Location) *CommentNormalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &CommentNormalizer{loc: loc}
}

// Comment normalizes one raw comment owned by noteID.
func (n *CommentNormalizer) Comment(raw crawler.RawItem, noteID string) crawler.CommentRecord {
	id, _ := first(raw, "id", "comment_id")
	content, _ := String(raw["content"])
	rec := crawler.CommentRecord{
		CommentID:       id,
		NoteID:          noteID,
		Content:         content,
		LikeCount:       Count(raw["like_count"]),
		Location:        optional(String(raw["ip_location"])),
		ParentCommentID: optional(String(raw["parent_comment_id"])),
		RootCommentID:   optional(String(raw["root_comment_id"])),
	}
	if t, ok := ParseEpoch(raw["create_time"], n.loc); ok {
		rec.UploadTime = &t
	}
	if user, ok := Map(raw["user_info"]); ok {
		rec.Commenter = crawler.Commenter{
			UserID:   optional(String(user["user_id"])),
			Nickname: optional(first(user, "nickname", "nick_name")),
		}
	}
	return rec
}

// Comments normalizes a page of comments. Replies nested under
// "sub_comments" follow their parent; a reply without its own root id is
// attributed to the parent.
func (n *CommentNormalizer) Comments(raws []crawler.RawItem, noteID string) []crawler.CommentRecord {
	out := make([]crawler.CommentRecord, 0, len(raws))
	for _, raw := range raws {
		parent := n.Comment(raw, noteID)
		out = append(out, parent)
		for _, sub := range objects(raw["sub_comments"]) {
			reply := n.Comment(sub, noteID)
			if reply.RootCommentID == nil && parent.CommentID != "" {
				root := parent.CommentID
				reply.RootCommentID = &root
			}
			out = append(out, reply)
		}
	}
	return out
}
