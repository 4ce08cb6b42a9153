package model

type LineKind string

const (
	KindTimeline     LineKind = "timeline"
	KindUserline     LineKind = "userline"
	KindMentionline  LineKind = "mentionline"
	KindTagline      LineKind = "tagline"
	KindGroupline    LineKind = "groupline"
	KindDomainline   LineKind = "domainline"
	KindFavoriteline LineKind = "favoriteline"
	// KindDiscussion 以根状态 id 为 key，存放其所有回复
	KindDiscussion LineKind = "discussion"
)

// Line 按状态 id 排序的一条线，值只存 id。
type Line struct {
	Kind LineKind
	Key  string
}

func (l Line) String() string { return string(l.Kind) + ":" + l.Key }

func TimelineOf(login string) Line     { return Line{Kind: KindTimeline, Key: login} }
func UserlineOf(login string) Line     { return Line{Kind: KindUserline, Key: login} }
func MentionlineOf(login string) Line  { return Line{Kind: KindMentionline, Key: login} }
func GrouplineOf(groupID string) Line  { return Line{Kind: KindGroupline, Key: groupID} }
func DomainlineOf(domain string) Line  { return Line{Kind: KindDomainline, Key: domain} }
func FavoritelineOf(login string) Line { return Line{Kind: KindFavoriteline, Key: login} }
func DiscussionOf(rootID string) Line  { return Line{Kind: KindDiscussion, Key: rootID} }

// TaglineOf 标签线按 domain 隔离
func TaglineOf(domain, tag string) Line {
	return Line{Kind: KindTagline, Key: TagKey(domain, tag)}
}

func TagKey(domain, tag string) string { return domain + ":" + tag }

// LineQuery 分页参数：Start 取比它新的，Finish 取比它旧的，均不包含边界。
type LineQuery struct {
	Start      string
	Finish     string
	Count      int
	StatusType StatusType
}
