package tiktok

import (
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yunstech/tiktok-downloader/pkg/models"
)

// ErrNoEmbeddedState means the page carried neither of TikTok's
// embedded JSON state blocks. That is how a blocked or challenge page
// presents itself to a scraper.
var ErrNoEmbeddedState = errors.New("no embedded JSON state found (empty response)")

const (
	universalDataScriptID = "__UNIVERSAL_DATA_FOR_REHYDRATION__"
	sigiStateScriptID     = "SIGI_STATE"
)

// flexInt64 accepts both JSON numbers and numeric strings. TikTok's
// state blocks are inconsistent about which one createTime is.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt64(v)
	return nil
}

// userDetail is the webapp.user-detail scope of UNIVERSAL_DATA.
type userDetail struct {
	NeedFix  bool `json:"needFix"`
	UserInfo struct {
		User struct {
			ID           string `json:"id"`
			SecUID       string `json:"secUid"`
			UniqueID     string `json:"uniqueId"`
			Nickname     string `json:"nickname"`
			AvatarLarger string `json:"avatarLarger"`
			Signature    string `json:"signature"`
		} `json:"user"`
		Stats struct {
			FollowerCount  int `json:"followerCount"`
			FollowingCount int `json:"followingCount"`
			VideoCount     int `json:"videoCount"`
		} `json:"stats"`
	} `json:"userInfo"`
	ItemList []videoItem `json:"itemList"`
	Items    []videoItem `json:"items"`
}

type universalData struct {
	DefaultScope struct {
		UserDetail userDetail `json:"webapp.user-detail"`
	} `json:"__DEFAULT_SCOPE__"`
}

// sigiState is the older embedded state format still served on some
// pages.
type sigiState struct {
	UserModule struct {
		Users map[string]struct {
			ID           string `json:"id"`
			UniqueID     string `json:"uniqueId"`
			Nickname     string `json:"nickname"`
			AvatarLarger string `json:"avatarLarger"`
			AvatarThumb  string `json:"avatarThumb"`
			Signature    string `json:"signature"`
		} `json:"users"`
		Stats map[string]struct {
			FollowerCount  int `json:"followerCount"`
			FollowingCount int `json:"followingCount"`
			VideoCount     int `json:"videoCount"`
		} `json:"stats"`
	} `json:"UserModule"`
	ItemModule map[string]videoItem `json:"ItemModule"`
}

// videoItem is one catalog entry as TikTok embeds it. Some sources wrap
// the real item under itemStruct or itemInfo.itemStruct.
type videoItem struct {
	ID         string    `json:"id"`
	Desc       string    `json:"desc"`
	CreateTime flexInt64 `json:"createTime"`
	Video      struct {
		DownloadAddr string `json:"downloadAddr"`
		PlayAddr     string `json:"playAddr"`
		Cover        string `json:"cover"`
		DynamicCover string `json:"dynamicCover"`
		Duration     int    `json:"duration"`
	} `json:"video"`
	Stats struct {
		PlayCount    int `json:"playCount"`
		DiggCount    int `json:"diggCount"`
		CommentCount int `json:"commentCount"`
		ShareCount   int `json:"shareCount"`
	} `json:"stats"`
	Author struct {
		UniqueID string `json:"uniqueId"`
	} `json:"author"`
	ItemStruct *videoItem `json:"itemStruct"`
	ItemInfo   *struct {
		ItemStruct *videoItem `json:"itemStruct"`
	} `json:"itemInfo"`
}

// unwrap resolves the itemStruct wrapping some sources add.
func (v *videoItem) unwrap() *videoItem {
	if v.ItemStruct != nil {
		return v.ItemStruct
	}
	if v.ItemInfo != nil && v.ItemInfo.ItemStruct != nil {
		return v.ItemInfo.ItemStruct
	}
	return v
}

// extractScriptJSON pulls the body of a <script id=...> tag out of the
// page.
func extractScriptJSON(html, scriptID string) []byte {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	raw := strings.TrimSpace(doc.Find("script#" + scriptID).Text())
	if raw == "" {
		return nil
	}
	return []byte(raw)
}

func extractUniversalData(html string) *universalData {
	raw := extractScriptJSON(html, universalDataScriptID)
	if raw == nil {
		return nil
	}
	var data universalData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}
	return &data
}

func extractSigiState(html string) *sigiState {
	raw := extractScriptJSON(html, sigiStateScriptID)
	if raw == nil {
		return nil
	}
	var data sigiState
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}
	return &data
}

// parseProfile reads creator metadata out of a profile page. It prefers
// UNIVERSAL_DATA and falls back to SIGI_STATE.
func parseProfile(html, username string) (*models.UserProfile, error) {
	if universal := extractUniversalData(html); universal != nil {
		info := universal.DefaultScope.UserDetail.UserInfo
		profile := &models.UserProfile{
			Username:       username,
			UserID:         info.User.ID,
			Nickname:       info.User.Nickname,
			AvatarURL:      info.User.AvatarLarger,
			Bio:            info.User.Signature,
			FollowerCount:  info.Stats.FollowerCount,
			FollowingCount: info.Stats.FollowingCount,
			VideoCount:     info.Stats.VideoCount,
		}
		if profile.Nickname == "" {
			profile.Nickname = username
		}
		return profile, nil
	}

	if sigi := extractSigiState(html); sigi != nil {
		profile := &models.UserProfile{Username: username, Nickname: username}
		for _, user := range sigi.UserModule.Users {
			if !strings.EqualFold(user.UniqueID, username) {
				continue
			}
			profile.UserID = user.ID
			if user.Nickname != "" {
				profile.Nickname = user.Nickname
			}
			profile.AvatarURL = user.AvatarLarger
			if profile.AvatarURL == "" {
				profile.AvatarURL = user.AvatarThumb
			}
			profile.Bio = user.Signature
			// stats are keyed by the internal user ID
			if stats, ok := sigi.UserModule.Stats[user.ID]; ok {
				profile.FollowerCount = stats.FollowerCount
				profile.FollowingCount = stats.FollowingCount
				profile.VideoCount = stats.VideoCount
			}
			break
		}
		return profile, nil
	}

	return nil, ErrNoEmbeddedState
}

var videoLinkPattern = regexp.MustCompile(`/@[^/"]+/video/(\d+)`)

// parseVideos reads the video catalog out of a profile page. Sources
// are tried in order of how much metadata they carry: UNIVERSAL_DATA
// item lists, the SIGI_STATE ItemModule, and finally bare video links
// scraped from the markup.
func parseVideos(html, username string, maxVideos int) ([]models.VideoInfo, error) {
	universal := extractUniversalData(html)
	sigi := extractSigiState(html)
	if universal == nil && sigi == nil {
		return nil, ErrNoEmbeddedState
	}

	var items []videoItem
	if universal != nil {
		detail := universal.DefaultScope.UserDetail
		items = detail.ItemList
		if len(items) == 0 {
			items = detail.Items
		}
	}

	if len(items) == 0 && sigi != nil && len(sigi.ItemModule) > 0 {
		items = sigiItems(sigi, username)
	}

	if len(items) == 0 {
		// last resort: video IDs scraped from anchors
		return videosFromLinks(html, username, maxVideos), nil
	}

	videos := make([]models.VideoInfo, 0, len(items))
	for _, raw := range items {
		item := raw.unwrap()
		if item.ID == "" {
			continue
		}
		videos = append(videos, videoFromItem(item, username))
		if maxVideos > 0 && len(videos) >= maxVideos {
			break
		}
	}
	return videos, nil
}

// sigiItems filters the ItemModule down to the target creator and
// sorts newest first.
func sigiItems(sigi *sigiState, username string) []videoItem {
	all := make([]videoItem, 0, len(sigi.ItemModule))
	filtered := make([]videoItem, 0, len(sigi.ItemModule))
	for _, item := range sigi.ItemModule {
		all = append(all, item)
		if strings.EqualFold(item.Author.UniqueID, username) {
			filtered = append(filtered, item)
		}
	}
	items := all
	if len(filtered) > 0 {
		items = filtered
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreateTime > items[j].CreateTime
	})
	return items
}

// videoFromItem maps an embedded item to the catalog model. The media
// locator prefers a direct address and falls back to the video page.
func videoFromItem(item *videoItem, username string) models.VideoInfo {
	mediaURL := item.Video.DownloadAddr
	if mediaURL == "" {
		mediaURL = item.Video.PlayAddr
	}
	if mediaURL == "" {
		mediaURL = VideoURL(username, item.ID)
	}

	thumbnail := item.Video.Cover
	if thumbnail == "" {
		thumbnail = item.Video.DynamicCover
	}

	return models.VideoInfo{
		VideoID:      item.ID,
		Description:  item.Desc,
		CreateTime:   int64(item.CreateTime),
		MediaURL:     mediaURL,
		ThumbnailURL: thumbnail,
		Duration:     item.Video.Duration,
		ViewCount:    item.Stats.PlayCount,
		LikeCount:    item.Stats.DiggCount,
		CommentCount: item.Stats.CommentCount,
		ShareCount:   item.Stats.ShareCount,
	}
}

// videosFromLinks scrapes /@user/video/<id> anchors out of the markup.
// Only the IDs are known at this point, so each entry's media locator
// is the canonical video page.
func videosFromLinks(html, username string, maxVideos int) []models.VideoInfo {
	seen := make(map[string]bool)
	var videos []models.VideoInfo
	for _, match := range videoLinkPattern.FindAllStringSubmatch(html, -1) {
		id := match[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		videos = append(videos, models.VideoInfo{
			VideoID:  id,
			MediaURL: VideoURL(username, id),
		})
		if maxVideos > 0 && len(videos) >= maxVideos {
			break
		}
	}
	return videos
}
