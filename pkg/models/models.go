package models

import "time"

// Stage represents the lifecycle stage of a scrape job.
type Stage string

const (
	StagePending     Stage = "pending"
	StageScraping    Stage = "scraping"
	StageDownloading Stage = "downloading"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// stageRank orders the forward progression of a job. StageFailed is not
// ranked: it is reachable from any stage and terminal once entered.
var stageRank = map[Stage]int{
	StagePending:     0,
	StageScraping:    1,
	StageDownloading: 2,
	StageCompleted:   3,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	if s == StageFailed {
		return true
	}
	_, ok := stageRank[s]
	return ok
}

// Terminal reports whether no further transitions are expected from s.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// CanTransition reports whether a job may move from s to next. Progression
// is forward-only; StageFailed is reachable from any stage. Setting the
// same stage again is allowed so that a restarted worker can resume a job
// without tripping the invariant check.
func (s Stage) CanTransition(next Stage) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if s == StageFailed {
		return false
	}
	if next == StageFailed {
		return true
	}
	return stageRank[next] > stageRank[s]
}

// Job is one end-to-end unit of work for a single target profile.
type Job struct {
	ID        string    `json:"job_id"`
	Username  string    `json:"username"`
	Stage     Stage     `json:"stage"`
	MaxVideos int       `json:"max_videos,omitempty"` // 0 means no cap
	Error     string    `json:"error,omitempty"`      // set only when Stage == StageFailed
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TotalVideos      int `json:"total_videos"`
	DownloadedVideos int `json:"downloaded_videos"`
	FailedVideos     int `json:"failed_videos"`
	DeliveredVideos  int `json:"delivered_videos"`
}

// UserProfile holds the creator metadata returned by either scraping
// strategy.
type UserProfile struct {
	Username       string `json:"username"`
	UserID         string `json:"user_id"`
	Nickname       string `json:"nickname"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	Bio            string `json:"bio,omitempty"`
	FollowerCount  int    `json:"follower_count"`
	FollowingCount int    `json:"following_count"`
	VideoCount     int    `json:"video_count"`
}

// VideoInfo describes one catalog entry. MediaURL is the media locator: a
// direct download address when the active strategy could resolve one,
// otherwise the canonical video page URL.
type VideoInfo struct {
	VideoID      string `json:"video_id"`
	Description  string `json:"description,omitempty"`
	CreateTime   int64  `json:"create_time,omitempty"`
	MediaURL     string `json:"media_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Duration     int    `json:"duration,omitempty"`
	ViewCount    int    `json:"view_count,omitempty"`
	LikeCount    int    `json:"like_count,omitempty"`
	CommentCount int    `json:"comment_count,omitempty"`
	ShareCount   int    `json:"share_count,omitempty"`
}

// PendingVideo is one downloaded file awaiting batch delivery.
type PendingVideo struct {
	JobID     string `json:"job_id"`
	VideoID   string `json:"video_id"`
	LocalPath string `json:"local_path"`
}

// DeliveryBatch is the contract handed to the delivery boundary. Items
// preserve download completion order.
type DeliveryBatch struct {
	JobID         string         `json:"job_id"`
	DestinationID string         `json:"destination_id"`
	Items         []PendingVideo `json:"items"`
}
